package room

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/takker99/scrapbox-core-go/pkg/page"
)

// StreamEvent is one event yielded by ListenStream, carrying the raw
// payload alongside the event name it arrived on.
type StreamEvent struct {
	Event string
	Data  json.RawMessage
}

// ListenStream is the Stream Subscriber (spec §4.7): it resolves
// projectId, opens a socket, joins the project-wide update stream, and
// yields events from the named channels (defaulting to both
// "projectUpdatesStream:event" and "projectUpdatesStream:commit"). The
// returned cancel function disconnects the socket and stops the stream.
func ListenStream(ctx context.Context, fetcher MetadataFetcher, dial func(context.Context) (Socket, error), project string, events ...string) (<-chan StreamEvent, func(), error) {
	if len(events) == 0 {
		events = []string{"projectUpdatesStream:event", "projectUpdatesStream:commit"}
	}

	projectID, err := fetcher.GetProjectID(ctx, project)
	if err != nil {
		return nil, nil, err
	}

	socket, err := dial(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrTransport, err)
	}

	joinData := joinProjectStreamRequest{ProjectID: projectID, PageID: nil, ProjectUpdatesStream: true}
	if _, err := socket.Request(ctx, "room:join", joinData); err != nil {
		_ = socket.Disconnect()
		return nil, nil, fmt.Errorf("%w: %v", ErrTransport, err)
	}

	envelopes, err := socket.Responses(ctx, events...)
	if err != nil {
		_ = socket.Disconnect()
		return nil, nil, fmt.Errorf("%w: %v", ErrTransport, err)
	}

	out := make(chan StreamEvent)
	stopped := make(chan struct{})
	go func() {
		defer close(out)
		for {
			select {
			case env, ok := <-envelopes:
				if !ok {
					return
				}
				select {
				case out <- StreamEvent{Event: env.Event, Data: env.Data}:
				case <-stopped:
					return
				}
			case <-stopped:
				return
			}
		}
	}()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			close(stopped)
			_ = socket.Disconnect()
		})
	}
	return out, cancel, nil
}

// DeletePage fetches the page's metadata and, if it is persistent, opens
// a socket and pushes a singleton `{deleted: true}` commit with retry,
// then closes. A non-persistent page is a no-op (spec §4.6 Delete-page).
func DeletePage(ctx context.Context, fetcher MetadataFetcher, dial func(context.Context) (Socket, error), project, title string, retryBound int) error {
	if retryBound <= 0 {
		retryBound = defaultRetryBound
	}

	meta, err := fetcher.GetPage(ctx, project, title)
	if err != nil {
		return err
	}
	if !meta.Persistent {
		return nil
	}

	projectID, err := fetcher.GetProjectID(ctx, project)
	if err != nil {
		return err
	}
	userID, err := fetcher.GetUserID(ctx)
	if err != nil {
		return err
	}

	socket, err := dial(ctx)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrTransport, err)
	}
	defer socket.Disconnect()

	joinData := joinPageRoomRequest{ProjectID: projectID, PageID: meta.ID, ProjectUpdatesStream: false}
	if _, err := socket.Request(ctx, "room:join", joinData); err != nil {
		return fmt.Errorf("%w: %v", ErrTransport, err)
	}

	parentID := meta.CommitID
	for attempt := 0; ; attempt++ {
		data := commitRequest{
			Kind:      "page",
			ProjectID: projectID,
			ParentID:  parentID,
			PageID:    meta.ID,
			UserID:    userID,
			Changes:   []page.ChangeOp{page.NewDeletePageOp()},
			Cursor:    nil,
			Freeze:    true,
		}
		_, err := socket.Request(ctx, "commit", data)
		if err == nil {
			return nil
		}
		if attempt >= retryBound {
			return ErrPushExhausted
		}
		refreshed, ferr := EnsureEditablePage(ctx, fetcher, project, title)
		if ferr != nil {
			return ferr
		}
		parentID = refreshed.CommitID
	}
}

// Patch is the one-shot patch variant named in spec §6: it joins a room,
// pushes one patch through the room's normal conflict-retry pipeline
// (which calls f again on each retry), and cleans up before returning.
func Patch(ctx context.Context, fetcher MetadataFetcher, dial func(context.Context) (Socket, error), project, title string, f func(lines []page.Line) ([]string, error)) ([]page.Line, error) {
	r, err := Join(ctx, fetcher, dial, project, title, 0)
	if err != nil {
		return nil, err
	}
	defer r.Cleanup()
	return r.Patch(ctx, f)
}
