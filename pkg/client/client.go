// Package client is the Go counterpart of the Visivo browser client: it
// calls the analyze and chat endpoints, consumes streamed replies, and keeps
// a locally persisted conversation.
package client

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"sync"

	"github.com/zhouzirui/visivo/backend/pkg/upload"
)

// DefaultBaseURL is the local development server.
const DefaultBaseURL = "http://localhost:8080"

// Attachment is a file sent inline with a chat message.
type Attachment struct {
	Name     string
	MimeType string
	Data     []byte
}

// Ref describes the attachment without its payload.
func (a *Attachment) Ref() *FileRef {
	if a == nil {
		return nil
	}
	return &FileRef{Name: a.Name, MimeType: a.MimeType, Size: int64(len(a.Data))}
}

// HistoryMessage is one prior turn for the multi-turn chat contract.
type HistoryMessage struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// AnalysisResult pairs one candidate of a batch with its outcome. Index is
// the position in the input slice.
type AnalysisResult struct {
	Index       int
	Name        string
	Description string
	Err         error
}

// Client talks to the Visivo backend.
type Client struct {
	baseURL    string
	httpClient *http.Client
	userHeader string
	userID     string
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithUser sends the signed-in user id in header on every request.
func WithUser(header, userID string) Option {
	return func(c *Client) {
		c.userHeader = header
		c.userID = userID
	}
}

// New creates a client for baseURL.
func New(baseURL string, opts ...Option) *Client {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = DefaultBaseURL
	}
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: http.DefaultClient,
		userHeader: "X-Visivo-User",
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Analyze asks the backend to describe one image.
func (c *Client) Analyze(ctx context.Context, cand upload.Candidate) (string, error) {
	resp, err := c.postImage(ctx, cand, nil)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var out struct {
		Description string `json:"description"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode analysis: %w", err)
	}
	return out.Description, nil
}

// AnalyzeAll analyzes candidates concurrently. Results are returned in input
// order regardless of completion order.
func (c *Client) AnalyzeAll(ctx context.Context, cands []upload.Candidate) []AnalysisResult {
	results := make([]AnalysisResult, len(cands))

	var wg sync.WaitGroup
	for i, cand := range cands {
		wg.Add(1)
		go func(i int, cand upload.Candidate) {
			defer wg.Done()
			desc, err := c.Analyze(ctx, cand)
			results[i] = AnalysisResult{Index: i, Name: cand.Name, Description: desc, Err: err}
		}(i, cand)
	}
	wg.Wait()

	return results
}

// Synthesize returns spoken audio for text. When text is empty the backend
// describes the image first.
func (c *Client) Synthesize(ctx context.Context, cand upload.Candidate, text string) ([]byte, error) {
	fields := map[string]string{"action": "synthesize"}
	if text != "" {
		fields["text"] = text
	}

	resp, err := c.postImage(ctx, cand, fields)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read audio: %w", err)
	}
	return audio, nil
}

// StreamChat sends a single-turn message and returns the reply as a stream.
// The caller must Close the stream.
func (c *Client) StreamChat(ctx context.Context, message string, attachment *Attachment) (*FragmentStream, error) {
	payload := map[string]any{"message": message}
	if attachment != nil {
		payload["fileData"] = map[string]string{
			"mimeType": attachment.MimeType,
			"data":     base64.StdEncoding.EncodeToString(attachment.Data),
		}
	}

	resp, err := c.postJSON(ctx, "/api/chat", payload, "text/plain")
	if err != nil {
		return nil, err
	}

	// Streaming disabled on the server: the reply arrives as JSON.
	if strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		defer resp.Body.Close()
		var out struct {
			Response string `json:"response"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			return nil, fmt.Errorf("decode reply: %w", err)
		}
		return newFragmentStream(ctx, io.NopCloser(strings.NewReader(out.Response))), nil
	}

	return newFragmentStream(ctx, resp.Body), nil
}

// Reply sends the full history and returns the complete answer.
func (c *Client) Reply(ctx context.Context, history []HistoryMessage) (string, error) {
	resp, err := c.postJSON(ctx, "/api/chat", map[string]any{"messages": history}, "application/json")
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var out struct {
		Response string `json:"response"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode reply: %w", err)
	}
	return out.Response, nil
}

func (c *Client) postImage(ctx context.Context, cand upload.Candidate, fields map[string]string) (*http.Response, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	h := textproto.MIMEHeader{}
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="image"; filename=%q`, cand.Name))
	h.Set("Content-Type", cand.MimeType)
	part, err := writer.CreatePart(h)
	if err != nil {
		return nil, err
	}
	if _, err := part.Write(cand.Data); err != nil {
		return nil, err
	}
	for k, v := range fields {
		if err := writer.WriteField(k, v); err != nil {
			return nil, err
		}
	}
	if err := writer.Close(); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/analyze", body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return c.do(req)
}

func (c *Client) postJSON(ctx context.Context, path string, payload any, accept string) (*http.Response, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", accept)
	return c.do(req)
}

func (c *Client) do(req *http.Request) (*http.Response, error) {
	if c.userID != "" {
		req.Header.Set(c.userHeader, c.userID)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		return nil, decodeAPIError(resp)
	}
	return resp, nil
}
