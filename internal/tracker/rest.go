package tracker

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/seedwise/kindred/internal/workitem"
)

const apiVersion = "7.0"

// Tracker field reference names mapped into WorkItem.
const (
	fieldTitle              = "System.Title"
	fieldDescription        = "System.Description"
	fieldWorkItemType       = "System.WorkItemType"
	fieldState              = "System.State"
	fieldAreaPath           = "System.AreaPath"
	fieldIterationPath      = "System.IterationPath"
	fieldTags               = "System.Tags"
	fieldAssignedTo         = "System.AssignedTo"
	fieldCreatedDate        = "System.CreatedDate"
	fieldChangedDate        = "System.ChangedDate"
	fieldPriority           = "Microsoft.VSTS.Common.Priority"
	fieldAcceptanceCriteria = "Microsoft.VSTS.Common.AcceptanceCriteria"
	fieldReproSteps         = "Microsoft.VSTS.TCM.ReproSteps"
	fieldBusinessValue      = "Microsoft.VSTS.Common.BusinessValue"
)

// hydrateFields is the field list requested on every read.
var hydrateFields = []string{
	fieldTitle, fieldDescription, fieldWorkItemType, fieldState,
	fieldAreaPath, fieldIterationPath, fieldTags, fieldAssignedTo,
	fieldCreatedDate, fieldChangedDate, fieldPriority,
	fieldAcceptanceCriteria, fieldReproSteps, fieldBusinessValue,
}

// RESTConfig configures the REST adapter.
type RESTConfig struct {
	// BaseURL is the collection URL (e.g. "https://dev.azure.com/acme").
	BaseURL string

	// Project scopes every call.
	Project string

	// Token is a personal access token. Sent as basic auth.
	Token string

	// Timeout bounds one HTTP request (default: 30s).
	Timeout time.Duration
}

// RESTClient implements Client against an Azure-DevOps-compatible API.
type RESTClient struct {
	baseURL string
	project string
	token   string
	client  *http.Client
}

// NewRESTClient validates the config and builds the adapter.
func NewRESTClient(cfg RESTConfig) (*RESTClient, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("tracker base URL is required")
	}
	if cfg.Project == "" {
		return nil, fmt.Errorf("tracker project is required")
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	return &RESTClient{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		project: cfg.Project,
		token:   cfg.Token,
		client:  &http.Client{Timeout: timeout},
	}, nil
}

// workItemDoc is the wire shape of one work item.
type workItemDoc struct {
	ID     int            `json:"id"`
	Fields map[string]any `json:"fields"`
}

type workItemListDoc struct {
	Count int           `json:"count"`
	Value []workItemDoc `json:"value"`
}

type wiqlRequest struct {
	Query string `json:"query"`
}

type wiqlResponse struct {
	WorkItems []struct {
		ID int `json:"id"`
	} `json:"workItems"`
}

type teamListDoc struct {
	Value []Team `json:"value"`
}

// GetWorkItem fetches one item by id.
func (c *RESTClient) GetWorkItem(ctx context.Context, id int) (workitem.WorkItem, error) {
	path := fmt.Sprintf("/%s/_apis/wit/workitems/%d", url.PathEscape(c.project), id)
	params := url.Values{}
	params.Set("api-version", apiVersion)
	params.Set("fields", strings.Join(hydrateFields, ","))

	body, status, err := c.do(ctx, http.MethodGet, path, params, nil)
	if err != nil {
		return workitem.WorkItem{}, err
	}
	if status == http.StatusNotFound {
		return workitem.WorkItem{}, fmt.Errorf("work item %d: %w", id, ErrNotFound)
	}
	if status != http.StatusOK {
		return workitem.WorkItem{}, statusError(status, body)
	}

	var doc workItemDoc
	if err := json.Unmarshal(body, &doc); err != nil {
		return workitem.WorkItem{}, fmt.Errorf("decode work item: %w", err)
	}
	return docToWorkItem(doc), nil
}

// GetWorkItemsBatch hydrates ids in one call. The tracker caps this at
// MaxBatchSize ids; callers chunk above that.
func (c *RESTClient) GetWorkItemsBatch(ctx context.Context, ids []int) ([]workitem.WorkItem, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	if len(ids) > MaxBatchSize {
		return nil, fmt.Errorf("batch of %d exceeds tracker limit %d", len(ids), MaxBatchSize)
	}

	idStrs := make([]string, len(ids))
	for i, id := range ids {
		idStrs[i] = strconv.Itoa(id)
	}
	path := fmt.Sprintf("/%s/_apis/wit/workitems", url.PathEscape(c.project))
	params := url.Values{}
	params.Set("api-version", apiVersion)
	params.Set("ids", strings.Join(idStrs, ","))
	params.Set("fields", strings.Join(hydrateFields, ","))
	params.Set("errorPolicy", "omit")

	body, status, err := c.do(ctx, http.MethodGet, path, params, nil)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, statusError(status, body)
	}

	var doc workItemListDoc
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("decode work item batch: %w", err)
	}

	items := make([]workitem.WorkItem, 0, len(doc.Value))
	for _, d := range doc.Value {
		items = append(items, docToWorkItem(d))
	}
	return items, nil
}

// QueryWorkItemIDs posts the WIQL text and returns matching ids.
func (c *RESTClient) QueryWorkItemIDs(ctx context.Context, q Query) ([]int, error) {
	path := fmt.Sprintf("/%s/_apis/wit/wiql", url.PathEscape(c.project))
	params := url.Values{"api-version": {apiVersion}}

	payload, err := json.Marshal(wiqlRequest{Query: q.WIQL})
	if err != nil {
		return nil, fmt.Errorf("marshal query: %w", err)
	}

	body, status, err := c.do(ctx, http.MethodPost, path, params, payload)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, statusError(status, body)
	}

	var doc wiqlResponse
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("decode query response: %w", err)
	}

	ids := make([]int, 0, len(doc.WorkItems))
	for _, w := range doc.WorkItems {
		ids = append(ids, w.ID)
	}
	return ids, nil
}

// GetTeams lists the project's teams.
func (c *RESTClient) GetTeams(ctx context.Context) ([]Team, error) {
	path := fmt.Sprintf("/_apis/projects/%s/teams", url.PathEscape(c.project))
	params := url.Values{"api-version": {apiVersion}}

	body, status, err := c.do(ctx, http.MethodGet, path, params, nil)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, statusError(status, body)
	}

	var doc teamListDoc
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("decode teams: %w", err)
	}
	return doc.Value, nil
}

func (c *RESTClient) do(ctx context.Context, method, path string, params url.Values, payload []byte) ([]byte, int, error) {
	u := c.baseURL + path
	if len(params) > 0 {
		u += "?" + params.Encode()
	}

	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return nil, 0, fmt.Errorf("create request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		// PAT auth: empty user, token as password.
		cred := base64.StdEncoding.EncodeToString([]byte(":" + c.token))
		req.Header.Set("Authorization", "Basic "+cred)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("HTTP request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, fmt.Errorf("read response: %w", err)
	}
	return body, resp.StatusCode, nil
}

func statusError(status int, body []byte) error {
	msg := strings.TrimSpace(string(body))
	if len(msg) > 200 {
		msg = msg[:200]
	}
	return fmt.Errorf("tracker returned status %d: %s", status, msg)
}

// docToWorkItem flattens the fields map into the domain snapshot.
func docToWorkItem(doc workItemDoc) workitem.WorkItem {
	f := doc.Fields
	return workitem.WorkItem{
		ID:                 doc.ID,
		Title:              fieldString(f, fieldTitle),
		Description:        fieldString(f, fieldDescription),
		WorkItemType:       fieldString(f, fieldWorkItemType),
		State:              fieldString(f, fieldState),
		Priority:           fieldInt(f, fieldPriority),
		AreaPath:           fieldString(f, fieldAreaPath),
		IterationPath:      fieldString(f, fieldIterationPath),
		Tags:               fieldString(f, fieldTags),
		AssignedTo:         fieldIdentity(f, fieldAssignedTo),
		CreatedDate:        fieldTime(f, fieldCreatedDate),
		ChangedDate:        fieldTime(f, fieldChangedDate),
		AcceptanceCriteria: fieldString(f, fieldAcceptanceCriteria),
		ReproSteps:         fieldString(f, fieldReproSteps),
		BusinessValue:      fieldString(f, fieldBusinessValue),
	}
}

func fieldString(fields map[string]any, key string) string {
	switch v := fields[key].(type) {
	case string:
		return v
	case float64:
		// Some installations type long-form fields numerically.
		return strconv.FormatFloat(v, 'f', -1, 64)
	}
	return ""
}

func fieldInt(fields map[string]any, key string) int {
	switch v := fields[key].(type) {
	case float64:
		return int(v)
	case string:
		n, _ := strconv.Atoi(v)
		return n
	}
	return 0
}

func fieldTime(fields map[string]any, key string) time.Time {
	s, ok := fields[key].(string)
	if !ok {
		return time.Time{}
	}
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05.999Z"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

// fieldIdentity handles identity fields that arrive either as a plain string
// or as an identity object with a displayName.
func fieldIdentity(fields map[string]any, key string) string {
	switch v := fields[key].(type) {
	case string:
		return v
	case map[string]any:
		if name, ok := v["displayName"].(string); ok {
			return name
		}
		if name, ok := v["uniqueName"].(string); ok {
			return name
		}
	}
	return ""
}

var _ Client = (*RESTClient)(nil)
