package rpc

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/runger/fleetdash/internal/directory"
	"github.com/runger/fleetdash/internal/selection"
)

// fetchTimeout is the maximum time allowed for a single call.
const fetchTimeout = 2 * time.Second

// Client talks to the Directory service over its Unix socket.
type Client struct {
	conn *grpc.ClientConn
}

// Dial creates a client for the socket. The connection is established
// lazily on the first call.
func Dial(socketPath string) (*Client, error) {
	conn, err := grpc.NewClient(
		"unix://"+socketPath,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		return nil, fmt.Errorf("rpc: dial: %w", err)
	}
	return &Client{conn: conn}, nil
}

// Close closes the connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

// ListPage fetches one page of kind.
func (c *Client) ListPage(ctx context.Context, kind directory.Kind, p directory.ListParams) (directory.Envelope, error) {
	in, err := structpb.NewStruct(map[string]any{
		"kind":    string(kind),
		"search":  p.Search,
		"page":    p.Page,
		"perPage": p.PerPage,
		"status":  p.Status,
		"owner":   p.Owner,
	})
	if err != nil {
		return directory.Envelope{}, fmt.Errorf("rpc: build request: %w", err)
	}

	var env directory.Envelope
	if err := c.invoke(ctx, listPageMethod, in, &env); err != nil {
		return directory.Envelope{}, fmt.Errorf("rpc: list %s: %w", kind, err)
	}
	return env, nil
}

// Get fetches one record.
func (c *Client) Get(ctx context.Context, kind directory.Kind, id string) (directory.Record, error) {
	in, err := structpb.NewStruct(map[string]any{"kind": string(kind), "id": id})
	if err != nil {
		return directory.Record{}, fmt.Errorf("rpc: build request: %w", err)
	}

	var body struct {
		Data directory.Record `json:"data"`
	}
	if err := c.invoke(ctx, getMethod, in, &body); err != nil {
		if status.Code(err) == codes.NotFound {
			return directory.Record{}, fmt.Errorf("%w: %s/%s", directory.ErrNotFound, kind, id)
		}
		return directory.Record{}, fmt.Errorf("rpc: get %s/%s: %w", kind, id, err)
	}
	return body.Data, nil
}

// Fetcher returns a selection fetch function for kind.
func (c *Client) Fetcher(kind directory.Kind, perPage int) selection.FetchFunc[directory.Record] {
	return func(ctx context.Context, q selection.Query, page int) (selection.Page[directory.Record], error) {
		env, err := c.ListPage(ctx, kind, directory.ParamsFromQuery(q, page, perPage))
		if err != nil {
			return selection.Page[directory.Record]{}, err
		}
		return env.Page(), nil
	}
}

// invoke runs method and decodes the Struct reply into out via JSON.
func (c *Client) invoke(ctx context.Context, method string, in *structpb.Struct, out any) error {
	ctx, cancel := context.WithTimeout(ctx, fetchTimeout)
	defer cancel()

	reply := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, method, in, reply); err != nil {
		if status.Code(err) == codes.Canceled {
			return fmt.Errorf("%w: %w", context.Canceled, err)
		}
		return err
	}

	b, err := protojson.Marshal(reply)
	if err != nil {
		return fmt.Errorf("encode reply: %w", err)
	}
	if err := json.Unmarshal(b, out); err != nil {
		return fmt.Errorf("decode reply: %w", err)
	}
	return nil
}
