package web

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/quartzdata/smartbatch"
	"github.com/quartzdata/smartbatch/schema"
)

// writeRequest is the JSON body of insert, update and upsert calls. The
// per-call knobs are optional; absent means the writer's defaults apply.
type writeRequest struct {
	Rows        []schema.Row `json:"rows"`
	MinimalSize int          `json:"minimal_size"`
	OmitNulls   *bool        `json:"omit_nulls"`
}

// options translates the optional request knobs into engine options.
func (req *writeRequest) options() []smartbatch.Option {
	var opts []smartbatch.Option
	if req.MinimalSize > 0 {
		opts = append(opts, smartbatch.WithMinimalSize(req.MinimalSize))
	}
	if req.OmitNulls != nil {
		opts = append(opts, smartbatch.WithOmitNulls(*req.OmitNulls))
	}
	return opts
}

// updateCall is the shared shape of the update and upsert engine entry
// points.
type updateCall func(ctx context.Context, h smartbatch.Handle, table *schema.Table, rows []schema.Row, opts ...smartbatch.Option) (smartbatch.UpdateResult, error)

type columnResponse struct {
	Name       string `json:"name"`
	PrimaryKey bool   `json:"primary_key"`
}

type tableResponse struct {
	Table      string           `json:"table"`
	Columns    []columnResponse `json:"columns"`
	KeyColumns []string         `json:"key_columns"`
}

type insertResponse struct {
	Table      string  `json:"table"`
	Operations int     `json:"operations"`
	Inserted   int     `json:"inserted"`
	ElapsedMS  float64 `json:"elapsed_ms"`
}

type updateResponse struct {
	Table     string  `json:"table"`
	Updated   int     `json:"updated"`
	Inserted  int     `json:"inserted"`
	ElapsedMS float64 `json:"elapsed_ms"`
}

type countResponse struct {
	Table string `json:"table"`
	Count int64  `json:"count"`
}

type resetResponse struct {
	Table   string `json:"table"`
	Deleted int64  `json:"deleted"`
}

// lookupTable resolves the {table} URL parameter through the descriptor
// source. Unknown tables come back as ErrNotFound.
func (s *Server) lookupTable(r *http.Request) (*schema.Table, error) {
	name := chi.URLParam(r, "table")
	if name == "" {
		return nil, fmt.Errorf("%w: table name is empty", smartbatch.ErrConfiguration)
	}
	return s.tables.Get(r.Context(), name)
}

// decodeWriteRequest parses a row-batch body. Numbers decode as json.Number
// and are rewritten to int64 or float64 so the store binds them natively
// instead of receiving every numeric as a float.
func decodeWriteRequest(r *http.Request) (*writeRequest, error) {
	dec := json.NewDecoder(r.Body)
	dec.UseNumber()

	var req writeRequest
	if err := dec.Decode(&req); err != nil {
		return nil, fmt.Errorf("%w: decode request body: %v", smartbatch.ErrConfiguration, err)
	}
	if len(req.Rows) == 0 {
		return nil, fmt.Errorf("%w: request body carries no rows", smartbatch.ErrConfiguration)
	}
	for _, row := range req.Rows {
		normalizeRow(row)
	}
	return &req, nil
}

// normalizeRow converts top-level json.Number values in place. Numbers
// nested inside object or array values stay as decoded; those columns are
// stored as JSON documents anyway.
func normalizeRow(row schema.Row) {
	for name, val := range row {
		n, ok := val.(json.Number)
		if !ok {
			continue
		}
		if i, err := n.Int64(); err == nil {
			row[name] = i
			continue
		}
		if f, err := n.Float64(); err == nil {
			row[name] = f
			continue
		}
		row[name] = n.String()
	}
}

func elapsedMS(start time.Time) float64 {
	return float64(time.Since(start).Microseconds()) / 1000.0
}

// handleHealth reports whether the store answers a ping.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.db.Ping(r.Context()); err != nil {
		respondError(w, r, fmt.Errorf("store unreachable: %w", err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleDescribeTable returns the introspected descriptor of a table.
func (s *Server) handleDescribeTable(w http.ResponseWriter, r *http.Request) {
	table, err := s.lookupTable(r)
	if err != nil {
		respondError(w, r, err)
		return
	}

	cols := make([]columnResponse, len(table.Columns))
	for i, col := range table.Columns {
		cols[i] = columnResponse{Name: col.Name, PrimaryKey: col.PrimaryKey}
	}
	writeJSON(w, http.StatusOK, tableResponse{
		Table:      table.Name,
		Columns:    cols,
		KeyColumns: table.KeyColumns(),
	})
}

// handleInsert runs the adaptive insert engine over the posted rows.
func (s *Server) handleInsert(w http.ResponseWriter, r *http.Request) {
	table, err := s.lookupTable(r)
	if err != nil {
		respondError(w, r, err)
		return
	}
	req, err := decodeWriteRequest(r)
	if err != nil {
		respondError(w, r, err)
		return
	}

	start := time.Now()
	res, err := s.writer.Insert(r.Context(), s.handle, table, req.Rows, req.options()...)
	if err != nil {
		respondError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, insertResponse{
		Table:      table.Name,
		Operations: res.Operations,
		Inserted:   res.Inserted,
		ElapsedMS:  elapsedMS(start),
	})
}

// handleUpdate updates the posted rows by primary key.
func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request) {
	s.handleUpdateCall(w, r, s.writer.Update)
}

// handleUpsert updates the posted rows and bulk-inserts the unmatched rest.
func (s *Server) handleUpsert(w http.ResponseWriter, r *http.Request) {
	s.handleUpdateCall(w, r, s.writer.Upsert)
}

func (s *Server) handleUpdateCall(w http.ResponseWriter, r *http.Request, call updateCall) {
	table, err := s.lookupTable(r)
	if err != nil {
		respondError(w, r, err)
		return
	}
	req, err := decodeWriteRequest(r)
	if err != nil {
		respondError(w, r, err)
		return
	}

	start := time.Now()
	res, err := call(r.Context(), s.handle, table, req.Rows, req.options()...)
	if err != nil {
		respondError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, updateResponse{
		Table:     table.Name,
		Updated:   res.Updated,
		Inserted:  res.Inserted,
		ElapsedMS: elapsedMS(start),
	})
}

// handleCount returns the table's row count.
func (s *Server) handleCount(w http.ResponseWriter, r *http.Request) {
	table, err := s.lookupTable(r)
	if err != nil {
		respondError(w, r, err)
		return
	}

	n, err := s.writer.Count(r.Context(), s.handle, table)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, countResponse{Table: table.Name, Count: n})
}

// handleReset deletes every row of the table.
func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	table, err := s.lookupTable(r)
	if err != nil {
		respondError(w, r, err)
		return
	}

	n, err := s.writer.DeleteAll(r.Context(), s.handle, table)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resetResponse{Table: table.Name, Deleted: n})
}

// handleGetRow fetches one row by primary key. Composite keys travel as
// comma-separated path segments in key-column order; values are passed to
// the store as text and cast there.
func (s *Server) handleGetRow(w http.ResponseWriter, r *http.Request) {
	table, err := s.lookupTable(r)
	if err != nil {
		respondError(w, r, err)
		return
	}

	parts := strings.Split(chi.URLParam(r, "key"), ",")
	key := make([]any, len(parts))
	for i, p := range parts {
		key[i] = p
	}

	row, err := s.writer.FindByKey(r.Context(), s.handle, table, key...)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, row)
}
