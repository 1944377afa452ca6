// Package sheets reads and writes workbook ranges through the Google Sheets API
// using service-account credentials.
package sheets

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"

	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"
)

// Reader is the read side of the Sheets API used by the ledger pipeline.
type Reader interface {
	ReadRange(ctx context.Context, spreadsheetID, a1 string) ([][]interface{}, error)
	ReadFormulas(ctx context.Context, spreadsheetID, a1 string) ([][]interface{}, error)
	BatchRead(ctx context.Context, spreadsheetID string, ranges []string) ([][][]interface{}, error)
	NamedRanges(ctx context.Context, spreadsheetID string) ([]NamedRange, error)
	SheetTitles(ctx context.Context, spreadsheetID string) ([]string, error)
}

// Writer updates cell values.
type Writer interface {
	WriteRange(ctx context.Context, spreadsheetID, a1 string, values [][]interface{}) error
	BatchWrite(ctx context.Context, spreadsheetID string, updates []CellUpdate) error
}

// ReadWriter combines Reader and Writer.
type ReadWriter interface {
	Reader
	Writer
}

// NamedRange is a workbook named range resolved to its tab.
type NamedRange struct {
	Name  string `json:"name"`
	Sheet string `json:"sheet"`
	Range Range  `json:"-"`
	A1    string `json:"range"`
}

// CellUpdate is one range write in a batch.
type CellUpdate struct {
	Range  string
	Values [][]interface{}
}

// Config selects credentials. CredentialsJSON wins over CredentialsFile.
// HTTPClient and Endpoint exist for tests and bypass credential loading.
type Config struct {
	CredentialsJSON string
	CredentialsFile string

	HTTPClient *http.Client
	Endpoint   string
}

// Client wraps the Sheets v4 service.
type Client struct {
	svc *gsheet.Service
}

var (
	_ Reader = (*Client)(nil)
	_ Writer = (*Client)(nil)
)

// ErrNoCredentials is returned when neither inline JSON nor a file is configured.
var ErrNoCredentials = errors.New("missing google credentials (set GOOGLE_CREDENTIALS_JSON or GOOGLE_APPLICATION_CREDENTIALS)")

// New builds a Sheets client from service-account credentials.
func New(ctx context.Context, cfg Config) (*Client, error) {
	var opts []option.ClientOption
	if cfg.HTTPClient != nil {
		opts = append(opts, option.WithHTTPClient(cfg.HTTPClient))
	} else {
		raw, err := credentialsBytes(cfg)
		if err != nil {
			return nil, err
		}
		creds, err := google.CredentialsFromJSON(ctx, raw, gsheet.SpreadsheetsScope)
		if err != nil {
			return nil, fmt.Errorf("parse google credentials: %w", err)
		}
		opts = append(opts, option.WithCredentials(creds))
	}
	if cfg.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(cfg.Endpoint))
	}

	svc, err := gsheet.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("sheets service: %w", err)
	}
	return &Client{svc: svc}, nil
}

func credentialsBytes(cfg Config) ([]byte, error) {
	if s := strings.TrimSpace(cfg.CredentialsJSON); s != "" {
		return []byte(s), nil
	}
	if path := strings.TrimSpace(cfg.CredentialsFile); path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read google credentials file: %w", err)
		}
		return b, nil
	}
	return nil, ErrNoCredentials
}

// ReadRange returns formatted cell values. Formatted rendering keeps money
// cells as strings so they can be parsed exactly.
func (c *Client) ReadRange(ctx context.Context, spreadsheetID, a1 string) ([][]interface{}, error) {
	return c.get(ctx, spreadsheetID, a1, "FORMATTED_VALUE")
}

// ReadFormulas returns cell formulas (or plain values for non-formula cells).
func (c *Client) ReadFormulas(ctx context.Context, spreadsheetID, a1 string) ([][]interface{}, error) {
	return c.get(ctx, spreadsheetID, a1, "FORMULA")
}

func (c *Client) get(ctx context.Context, spreadsheetID, a1, render string) ([][]interface{}, error) {
	resp, err := c.svc.Spreadsheets.Values.Get(spreadsheetID, a1).
		ValueRenderOption(render).
		Context(ctx).
		Do()
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", a1, err)
	}
	return resp.Values, nil
}

// BatchRead reads several ranges in one request. Results follow the order of ranges.
func (c *Client) BatchRead(ctx context.Context, spreadsheetID string, ranges []string) ([][][]interface{}, error) {
	if len(ranges) == 0 {
		return nil, nil
	}
	resp, err := c.svc.Spreadsheets.Values.BatchGet(spreadsheetID).
		Ranges(ranges...).
		ValueRenderOption("FORMATTED_VALUE").
		Context(ctx).
		Do()
	if err != nil {
		return nil, fmt.Errorf("batch read %s: %w", strings.Join(ranges, ","), err)
	}
	out := make([][][]interface{}, len(ranges))
	for i, vr := range resp.ValueRanges {
		if i >= len(out) {
			break
		}
		out[i] = vr.Values
	}
	return out, nil
}

// NamedRanges lists named ranges with their tab and A1 coordinates.
func (c *Client) NamedRanges(ctx context.Context, spreadsheetID string) ([]NamedRange, error) {
	ss, err := c.svc.Spreadsheets.Get(spreadsheetID).
		Fields("namedRanges,sheets.properties(sheetId,title)").
		Context(ctx).
		Do()
	if err != nil {
		return nil, fmt.Errorf("list named ranges: %w", err)
	}

	titles := make(map[int64]string, len(ss.Sheets))
	for _, sh := range ss.Sheets {
		if sh.Properties != nil {
			titles[sh.Properties.SheetId] = sh.Properties.Title
		}
	}

	out := make([]NamedRange, 0, len(ss.NamedRanges))
	for _, nr := range ss.NamedRanges {
		if nr.Range == nil {
			continue
		}
		r := gridToRange(nr.Range, titles[nr.Range.SheetId])
		out = append(out, NamedRange{Name: nr.Name, Sheet: r.Sheet, Range: r, A1: r.String()})
	}
	return out, nil
}

// SheetTitles lists the tab titles in workbook order.
func (c *Client) SheetTitles(ctx context.Context, spreadsheetID string) ([]string, error) {
	ss, err := c.svc.Spreadsheets.Get(spreadsheetID).
		Fields("sheets.properties(sheetId,title)").
		Context(ctx).
		Do()
	if err != nil {
		return nil, fmt.Errorf("list sheets: %w", err)
	}
	out := make([]string, 0, len(ss.Sheets))
	for _, sh := range ss.Sheets {
		if sh.Properties != nil {
			out = append(out, sh.Properties.Title)
		}
	}
	return out, nil
}

// WriteRange writes values as if typed by a user, so formulas are parsed.
func (c *Client) WriteRange(ctx context.Context, spreadsheetID, a1 string, values [][]interface{}) error {
	vr := &gsheet.ValueRange{Values: values}
	_, err := c.svc.Spreadsheets.Values.Update(spreadsheetID, a1, vr).
		ValueInputOption("USER_ENTERED").
		Context(ctx).
		Do()
	if err != nil {
		return fmt.Errorf("write %s: %w", a1, err)
	}
	return nil
}

// BatchWrite applies several range writes in one request.
func (c *Client) BatchWrite(ctx context.Context, spreadsheetID string, updates []CellUpdate) error {
	if len(updates) == 0 {
		return nil
	}
	req := &gsheet.BatchUpdateValuesRequest{ValueInputOption: "USER_ENTERED"}
	for _, u := range updates {
		req.Data = append(req.Data, &gsheet.ValueRange{Range: u.Range, Values: u.Values})
	}
	if _, err := c.svc.Spreadsheets.Values.BatchUpdate(spreadsheetID, req).Context(ctx).Do(); err != nil {
		return fmt.Errorf("batch write %d ranges: %w", len(updates), err)
	}
	return nil
}

// gridToRange converts zero-based half-open grid indexes to a 1-based Range.
// Unbounded edges stay zero.
func gridToRange(g *gsheet.GridRange, sheet string) Range {
	r := Range{Sheet: sheet}
	if g.EndColumnIndex > 0 {
		r.StartCol = int(g.StartColumnIndex) + 1
		r.EndCol = int(g.EndColumnIndex)
	}
	if g.EndRowIndex > 0 {
		r.StartRow = int(g.StartRowIndex) + 1
		r.EndRow = int(g.EndRowIndex)
	}
	return r
}
