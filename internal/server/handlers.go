package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/koustreak/querypool/internal/backend"
	"github.com/koustreak/querypool/internal/backend/objectstore"
	"github.com/koustreak/querypool/internal/errs"
	"github.com/koustreak/querypool/internal/future"
	"github.com/koustreak/querypool/internal/pool"
	"github.com/koustreak/querypool/internal/registry"
)

// queryRequest is the body of POST /pools/{pool}/query.
type queryRequest struct {
	SQL  string `json:"sql"`
	Args []any  `json:"args"`
}

type queryResponse struct {
	Columns      []string `json:"columns"`
	Rows         [][]any  `json:"rows"`
	RowsAffected int64    `json:"rows_affected"`
}

type callbackResult struct {
	rs  *backend.ResultSet
	err error
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	_ = writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"pools":  len(s.reg.Names()),
	})
}

func (s *Server) handleListPools(w http.ResponseWriter, _ *http.Request) {
	_ = writeJSON(w, http.StatusOK, s.reg.AllStats())
}

func (s *Server) handlePoolStats(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "pool")
	st, ok := s.reg.Stats(name)
	if !ok {
		_ = writeError(w, r, poolNotFound(name))
		return
	}
	_ = writeJSON(w, http.StatusOK, st)
}

// handleQuery runs one statement through the pool's service. The result
// comes back through the service callback, after the connection has been
// returned to the pool.
func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	sp, ok := s.sqlPool(w, r)
	if !ok {
		return
	}

	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		_ = writeError(w, r, errs.Wrap(errs.ErrKindInvalidInput, "invalid request body", err))
		return
	}
	if req.SQL == "" {
		_ = writeError(w, r, errs.New(errs.ErrKindInvalidInput, "sql is required"))
		return
	}

	ctx, cancel := s.requestContext(r)
	defer cancel()

	done := make(chan callbackResult, 1)
	err := sp.Service.Post(backend.Stmt(req.SQL, req.Args...), func(rs *backend.ResultSet, err error) {
		done <- callbackResult{rs: rs, err: err}
	})
	if err != nil {
		_ = writeError(w, r, err)
		return
	}

	select {
	case res := <-done:
		if res.err != nil {
			_ = writeError(w, r, res.err)
			return
		}
		_ = writeJSON(w, http.StatusOK, queryResponse{
			Columns:      res.rs.Columns,
			Rows:         res.rs.Rows,
			RowsAffected: res.rs.RowsAffected,
		})
	case <-ctx.Done():
		_ = writeError(w, r, errs.Wrap(errs.ErrKindTimeout, "query did not finish in time", ctx.Err()))
	}
}

func (s *Server) handleListTables(w http.ResponseWriter, r *http.Request) {
	sp, ok := s.sqlPool(w, r)
	if !ok {
		return
	}
	ctx, cancel := s.requestContext(r)
	defer cancel()

	stmt := backend.ListTables(sp.Dialect, r.URL.Query().Get("schema"))
	rs, err := await(ctx, sp.Service.Dispatch(stmt))
	if err != nil {
		_ = writeError(w, r, err)
		return
	}
	_ = writeJSON(w, http.StatusOK, map[string]any{"tables": backend.TableNames(rs)})
}

func (s *Server) handleDescribeTable(w http.ResponseWriter, r *http.Request) {
	sp, ok := s.sqlPool(w, r)
	if !ok {
		return
	}
	ctx, cancel := s.requestContext(r)
	defer cancel()

	schema := r.URL.Query().Get("schema")
	table := chi.URLParam(r, "table")
	rs, err := await(ctx, sp.Service.Dispatch(backend.ListColumns(sp.Dialect, schema, table)))
	if err != nil {
		_ = writeError(w, r, err)
		return
	}
	cols := backend.DecodeColumns(rs)
	if len(cols) == 0 {
		_ = writeError(w, r, errs.New(errs.ErrKindNotFound, fmt.Sprintf("table %q not found", table)))
		return
	}
	_ = writeJSON(w, http.StatusOK, backend.TableInfo{Schema: schema, Name: table, Columns: cols})
}

func (s *Server) handleObjects(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "pool")
	op, ok := s.reg.ObjectStore(name)
	if !ok {
		_ = writeError(w, r, poolNotFound(name))
		return
	}

	var req objectstore.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		_ = writeError(w, r, errs.Wrap(errs.ErrKindInvalidInput, "invalid request body", err))
		return
	}

	ctx, cancel := s.requestContext(r)
	defer cancel()

	resp, err := await(ctx, op.Service.Dispatch(req))
	if err != nil {
		_ = writeError(w, r, err)
		return
	}
	_ = writeJSON(w, http.StatusOK, resp)
}

func (s *Server) sqlPool(w http.ResponseWriter, r *http.Request) (*registry.SQLPool, bool) {
	name := chi.URLParam(r, "pool")
	sp, ok := s.reg.SQL(name)
	if !ok {
		_ = writeError(w, r, poolNotFound(name))
		return nil, false
	}
	return sp, true
}

// await waits for fut within ctx and releases the connection. If ctx runs
// out first, the connection is released once the query finishes.
func await[Q, R any](ctx context.Context, fut *future.Future[*pool.Result[Q, R]]) (R, error) {
	res, err := fut.Wait(ctx)
	if err != nil {
		go func() {
			if late, err := fut.Get(); err == nil {
				_ = late.Release()
			}
		}()
		var zero R
		return zero, err
	}
	defer res.Release()
	return res.Value, nil
}

func poolNotFound(name string) error {
	return errs.New(errs.ErrKindNotFound, fmt.Sprintf("no pool named %q", name))
}
