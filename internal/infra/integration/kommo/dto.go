package kommo

type CreateLeadInput struct {
	Name        string
	Email       string
	Phone       string
	Intent      string
	Campaign    string
	Temperature string
	Score       int
	Tags        []string
}

type embeddedIDs struct {
	Embedded struct {
		Leads []struct {
			ID int `json:"id"`
		} `json:"leads"`
		Contacts []struct {
			ID int `json:"id"`
		} `json:"contacts"`
	} `json:"_embedded"`
}
