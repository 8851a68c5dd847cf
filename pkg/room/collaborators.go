package room

import (
	"context"
	"encoding/json"

	"github.com/takker99/scrapbox-core-go/pkg/page"
)

// PageMeta is the result of a metadata fetcher's getPage call.
type PageMeta struct {
	ID         string
	CommitID   string
	Lines      []page.Line
	Persistent bool
	Editable   bool
}

// MetadataFetcher is the HTTP metadata collaborator named in spec §6. Its
// concrete implementation (the HTTP metadata client) is deliberately
// outside the core; the room only depends on this interface so it can be
// unit-tested against fakes.
type MetadataFetcher interface {
	GetPage(ctx context.Context, project, title string) (PageMeta, error)
	GetProjectID(ctx context.Context, project string) (string, error)
	GetUserID(ctx context.Context) (string, error)
}

// EnsureEditablePage wraps GetPage and fails ErrForbidden when the page
// reports non-editable.
func EnsureEditablePage(ctx context.Context, fetcher MetadataFetcher, project, title string) (PageMeta, error) {
	meta, err := fetcher.GetPage(ctx, project, title)
	if err != nil {
		return PageMeta{}, err
	}
	if !meta.Editable {
		return PageMeta{}, ErrForbidden
	}
	return meta, nil
}

// Envelope is one multiplexed event delivered by Socket.Responses.
type Envelope struct {
	Event string
	Data  json.RawMessage
}

// CommitNotification is the wire shape of an incoming commit, per spec §6.
type CommitNotification struct {
	ID      string           `json:"id"`
	Changes []page.ChangeOp  `json:"changes"`
	UserID  string           `json:"userId"`
}

// CommitResult is the wire shape of a successful commit response.
type CommitResult struct {
	CommitID string `json:"commitId"`
}

// Socket is the duplex, socket.io-style channel named in spec §6: a
// request/response RPC plus a multiplexed event subscription. Component H
// (Transport) is its concrete, websocket-backed implementation; the room
// only depends on this interface so A-G stay collaborator-agnostic.
type Socket interface {
	Request(ctx context.Context, method string, data any) (json.RawMessage, error)
	Responses(ctx context.Context, events ...string) (<-chan Envelope, error)
	Disconnect() error
}

// joinPageRoomRequest is the room:join envelope for joining a single
// page's editing room.
type joinPageRoomRequest struct {
	ProjectID           string `json:"projectId"`
	PageID              string `json:"pageId"`
	ProjectUpdatesStream bool   `json:"projectUpdatesStream"`
}

// joinProjectStreamRequest is the envelope for joining a project-wide
// update stream (spec §4.7).
type joinProjectStreamRequest struct {
	ProjectID            string `json:"projectId"`
	PageID               any    `json:"pageId"`
	ProjectUpdatesStream bool   `json:"projectUpdatesStream"`
}

// commitRequest is the envelope submitted to push a change-op batch.
type commitRequest struct {
	Kind      string          `json:"kind"`
	ProjectID string          `json:"projectId"`
	ParentID  string          `json:"parentId"`
	PageID    string          `json:"pageId"`
	UserID    string          `json:"userId"`
	Changes   []page.ChangeOp `json:"changes"`
	Cursor    any             `json:"cursor"`
	Freeze    bool            `json:"freeze"`
}
