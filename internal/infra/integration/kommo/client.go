package kommo

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/xavierca1/leaddrip/internal/infra/queue"
)

var ErrNotConfigured = errors.New("kommo not configured")

type Client struct {
	apiToken   string
	baseURL    string
	httpClient *http.Client
}

func NewClient(baseURL, apiToken string) *Client {
	return &Client{
		apiToken:   apiToken,
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

func (c *Client) Name() string { return "kommo" }

// NotifyLeadCaptured pushes hot and warm leads into the CRM pipeline. Cooler
// leads stay in the drip campaign only.
func (c *Client) NotifyLeadCaptured(ctx context.Context, p queue.LeadCapturedPayload) error {
	if p.Temperature != "hot" && p.Temperature != "warm" {
		return nil
	}

	tags := []string{p.Temperature, fmt.Sprintf("score_%d", p.Score), "priority_" + p.Priority}
	if p.Intent != "" {
		tags = append(tags, "intent_"+p.Intent)
	}

	_, err := c.CreateLead(ctx, CreateLeadInput{
		Name:        p.Name,
		Email:       p.Email,
		Phone:       p.Phone,
		Intent:      p.Intent,
		Campaign:    p.Campaign,
		Temperature: p.Temperature,
		Score:       p.Score,
		Tags:        tags,
	})
	return err
}

func (c *Client) CreateLead(ctx context.Context, input CreateLeadInput) (int, error) {
	if c.apiToken == "" {
		return 0, ErrNotConfigured
	}

	contactID, err := c.findOrCreateContact(ctx, input)
	if err != nil {
		return 0, fmt.Errorf("find or create contact: %w", err)
	}

	tags := make([]map[string]any, 0, len(input.Tags))
	for _, t := range input.Tags {
		tags = append(tags, map[string]any{"name": t})
	}

	title := input.Name
	if input.Intent != "" {
		title = fmt.Sprintf("%s - %s", input.Name, input.Intent)
	}

	leadData := []map[string]any{
		{
			"name": title,
			"_embedded": map[string]any{
				"tags":     tags,
				"contacts": []map[string]any{{"id": contactID}},
			},
		},
	}

	var result embeddedIDs
	if err := c.post(ctx, "/leads", leadData, &result); err != nil {
		return 0, fmt.Errorf("create lead: %w", err)
	}
	if len(result.Embedded.Leads) == 0 {
		return 0, errors.New("create lead: empty response")
	}

	leadID := result.Embedded.Leads[0].ID
	log.Ctx(ctx).Info().Int("kommo_lead_id", leadID).Str("temperature", input.Temperature).Msg("kommo lead created")
	return leadID, nil
}

func (c *Client) findOrCreateContact(ctx context.Context, input CreateLeadInput) (int, error) {
	contactID, err := c.findContact(ctx, input.Email)
	if err == nil && contactID > 0 {
		return contactID, nil
	}
	return c.createContact(ctx, input)
}

func (c *Client) findContact(ctx context.Context, query string) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/contacts?query="+url.QueryEscape(query), nil)
	if err != nil {
		return 0, err
	}
	c.addAuthHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	// kommo answers 204 when nothing matches
	if resp.StatusCode == http.StatusNoContent {
		return 0, nil
	}
	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("search contact: status %d", resp.StatusCode)
	}

	var result embeddedIDs
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return 0, err
	}
	if len(result.Embedded.Contacts) == 0 {
		return 0, nil
	}
	return result.Embedded.Contacts[0].ID, nil
}

func (c *Client) createContact(ctx context.Context, input CreateLeadInput) (int, error) {
	fields := []map[string]any{
		{
			"field_code": "EMAIL",
			"values":     []map[string]any{{"value": input.Email, "enum_code": "WORK"}},
		},
	}
	if input.Phone != "" {
		fields = append(fields, map[string]any{
			"field_code": "PHONE",
			"values":     []map[string]any{{"value": input.Phone, "enum_code": "MOB"}},
		})
	}

	contactData := []map[string]any{
		{"name": input.Name, "custom_fields_values": fields},
	}

	var result embeddedIDs
	if err := c.post(ctx, "/contacts", contactData, &result); err != nil {
		return 0, err
	}
	if len(result.Embedded.Contacts) == 0 {
		return 0, errors.New("create contact: empty response")
	}
	return result.Embedded.Contacts[0].ID, nil
}

func (c *Client) post(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	c.addAuthHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return fmt.Errorf("status %d: %s", resp.StatusCode, respBody)
	}
	return json.Unmarshal(respBody, out)
}

func (c *Client) addAuthHeaders(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+c.apiToken)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
}
