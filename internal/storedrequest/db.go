package storedrequest

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"

	"github.com/seantiz/vexing/internal/deadline"
	"github.com/seantiz/vexing/internal/model"
	"github.com/seantiz/vexing/internal/store"
)

// DBFetcher loads fragments from the stored_requests table in one bounded query.
type DBFetcher struct {
	client *store.Client
}

// NewDBFetcher creates a Fetcher backed by client.
func NewDBFetcher(client *store.Client) *DBFetcher {
	return &DBFetcher{client: client}
}

// FetchRequests implements Fetcher.
func (f *DBFetcher) FetchRequests(ctx context.Context, d deadline.Deadline, requestIDs, impIDs []string) (*Result, error) {
	if len(requestIDs) == 0 && len(impIDs) == 0 {
		return newResult(), nil
	}

	var clauses []string
	var params []any
	if len(requestIDs) > 0 {
		clauses = append(clauses, "(kind = ? AND id IN ("+store.Placeholders(len(requestIDs))+"))")
		params = append(params, model.KindRequest)
		for _, id := range requestIDs {
			params = append(params, id)
		}
	}
	if len(impIDs) > 0 {
		clauses = append(clauses, "(kind = ? AND id IN ("+store.Placeholders(len(impIDs))+"))")
		params = append(params, model.KindImp)
		for _, id := range impIDs {
			params = append(params, id)
		}
	}

	statement := "SELECT kind, id, data FROM stored_requests WHERE " + strings.Join(clauses, " OR ")
	return store.Query(ctx, f.client, d, statement, params, scanResult)
}

func scanResult(rows *sql.Rows) (*Result, error) {
	res := newResult()
	for rows.Next() {
		var kind, id, data string
		if err := rows.Scan(&kind, &id, &data); err != nil {
			return nil, err
		}
		switch kind {
		case model.KindRequest:
			res.Requests[id] = json.RawMessage(data)
		case model.KindImp:
			res.Imps[id] = json.RawMessage(data)
		}
	}
	return res, nil
}
