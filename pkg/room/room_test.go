package room

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/takker99/scrapbox-core-go/pkg/page"
)

// fakeSocket is a Socket test double: "room:join" always succeeds, and
// "commit" dequeues the next canned response/error, recording every
// commitRequest it was asked to submit.
type fakeSocket struct {
	mu              sync.Mutex
	commitResponses []fakeCommitResponse
	commitCalls     []commitRequest
	disconnected    bool
}

type fakeCommitResponse struct {
	commitID string
	err      error
}

func (s *fakeSocket) Request(ctx context.Context, method string, data any) (json.RawMessage, error) {
	switch method {
	case "room:join":
		return json.RawMessage(`{}`), nil
	case "commit":
		s.mu.Lock()
		defer s.mu.Unlock()
		if cr, ok := data.(commitRequest); ok {
			s.commitCalls = append(s.commitCalls, cr)
		}
		if len(s.commitResponses) == 0 {
			return nil, errors.New("fakeSocket: no commit response queued")
		}
		resp := s.commitResponses[0]
		s.commitResponses = s.commitResponses[1:]
		if resp.err != nil {
			return nil, resp.err
		}
		result := CommitResult{CommitID: resp.commitID}
		raw, err := json.Marshal(result)
		return raw, err
	default:
		return nil, fmt.Errorf("fakeSocket: unexpected method %q", method)
	}
}

func (s *fakeSocket) Responses(ctx context.Context, events ...string) (<-chan Envelope, error) {
	return make(chan Envelope), nil
}

func (s *fakeSocket) Disconnect() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.disconnected = true
	return nil
}

func (s *fakeSocket) queueSuccess(commitID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.commitResponses = append(s.commitResponses, fakeCommitResponse{commitID: commitID})
}

func (s *fakeSocket) queueError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.commitResponses = append(s.commitResponses, fakeCommitResponse{err: err})
}

func (s *fakeSocket) calls() []commitRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]commitRequest, len(s.commitCalls))
	copy(out, s.commitCalls)
	return out
}

// fakeFetcher is a MetadataFetcher test double backed by an in-memory
// page keyed by title; GetPage reflects whatever refreshPage last set.
type fakeFetcher struct {
	mu        sync.Mutex
	projectID string
	userID    string
	pages     map[string]PageMeta
}

func newFakeFetcher(projectID, userID string) *fakeFetcher {
	return &fakeFetcher{projectID: projectID, userID: userID, pages: map[string]PageMeta{}}
}

func (f *fakeFetcher) setPage(title string, meta PageMeta) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pages[title] = meta
}

func (f *fakeFetcher) GetPage(ctx context.Context, project, title string) (PageMeta, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	meta, ok := f.pages[title]
	if !ok {
		return PageMeta{}, fmt.Errorf("fakeFetcher: no page %q", title)
	}
	return meta, nil
}

func (f *fakeFetcher) GetProjectID(ctx context.Context, project string) (string, error) {
	return f.projectID, nil
}

func (f *fakeFetcher) GetUserID(ctx context.Context) (string, error) {
	return f.userID, nil
}

func dialWith(socket Socket) func(context.Context) (Socket, error) {
	return func(context.Context) (Socket, error) {
		return socket, nil
	}
}

func joinTestRoom(t *testing.T, fetcher *fakeFetcher, socket Socket, title string) *Room {
	t.Helper()
	r, err := Join(context.Background(), fetcher, dialWith(socket), "proj", title, 0)
	require.NoError(t, err)
	t.Cleanup(func() { _ = r.Cleanup() })
	return r
}

func TestRoomInsertPushesSingleBatch(t *testing.T) {
	fetcher := newFakeFetcher("p1", "u1")
	fetcher.setPage("Doc", PageMeta{
		ID:         "page1",
		CommitID:   "c0",
		Lines:      []page.Line{{ID: "L1", Text: "hello"}},
		Persistent: true,
		Editable:   true,
	})
	socket := &fakeSocket{}
	socket.queueSuccess("c1")

	r := joinTestRoom(t, fetcher, socket, "Doc")
	lines, err := r.Insert(context.Background(), "world", page.EndAnchor)
	require.NoError(t, err)
	require.Len(t, lines, 2)
	require.Equal(t, "world", lines[1].Text)

	snap := r.Snapshot()
	require.Equal(t, "c1", snap.ParentID)
	require.True(t, snap.Created)
}

// TestRoomTitleSynthesisOnFirstPush is literal scenario 6: created=false
// on an empty-shell page means the title op is auto-appended regardless
// of whether the first line's text actually changed.
func TestRoomTitleSynthesisOnFirstPush(t *testing.T) {
	fetcher := newFakeFetcher("p1", "u1")
	fetcher.setPage("Title", PageMeta{
		ID:         "page1",
		CommitID:   "c0",
		Lines:      []page.Line{{ID: "L1", Text: "title"}},
		Persistent: false,
		Editable:   true,
	})
	socket := &fakeSocket{}
	socket.queueSuccess("c1")

	r := joinTestRoom(t, fetcher, socket, "Title")
	_, err := r.Insert(context.Background(), "Hello", page.EndAnchor)
	require.NoError(t, err)

	calls := socket.calls()
	require.Len(t, calls, 1)

	var sawInsert, sawTitle bool
	for _, op := range calls[0].Changes {
		switch op.Kind {
		case page.OpInsert:
			sawInsert = true
			require.Equal(t, "Hello", op.NewLine.Text)
		case page.OpTitle:
			sawTitle = true
			require.Equal(t, "title", op.Title)
		}
	}
	require.True(t, sawInsert, "expected an insert op in the batch")
	require.True(t, sawTitle, "expected an auto-appended title op because created=false")
}

// TestRoomConflictRetry is literal scenario 5: the first commit fails
// Transport, the refetch reports a new head with an added line, and the
// retried commit succeeds; the mirror ends up on the new commit id.
func TestRoomConflictRetry(t *testing.T) {
	fetcher := newFakeFetcher("p1", "u1")
	fetcher.setPage("Doc", PageMeta{
		ID:         "page1",
		CommitID:   "p1",
		Lines:      []page.Line{{ID: "L1", Text: "a"}},
		Persistent: true,
		Editable:   true,
	})
	socket := &fakeSocket{}
	socket.queueError(ErrTransport)
	socket.queueSuccess("commit-2")

	r := joinTestRoom(t, fetcher, socket, "Doc")

	refreshed := PageMeta{
		ID:         "page1",
		CommitID:   "p2",
		Lines:      []page.Line{{ID: "L1", Text: "a"}, {ID: "L2", Text: "remote"}},
		Persistent: true,
		Editable:   true,
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		fetcher.setPage("Doc", refreshed)
	}()
	<-done

	lines, err := r.Insert(context.Background(), "local", page.EndAnchor)
	require.NoError(t, err)

	snap := r.Snapshot()
	require.Equal(t, "commit-2", snap.ParentID)
	require.Equal(t, lines, snap.Lines)

	texts := make([]string, len(lines))
	for i, l := range lines {
		texts[i] = l.Text
	}
	require.Equal(t, []string{"a", "remote", "local"}, texts)

	calls := socket.calls()
	require.Len(t, calls, 2)
	require.Equal(t, "p1", calls[0].ParentID)
	require.Equal(t, "p2", calls[1].ParentID)
}

// TestRoomPatchRecomputesOnConflict checks that a patch-originated push
// re-diffs against the refreshed lines on retry, per spec §4.6 step 6.
func TestRoomPatchRecomputesOnConflict(t *testing.T) {
	fetcher := newFakeFetcher("p1", "u1")
	fetcher.setPage("Doc", PageMeta{
		ID:         "page1",
		CommitID:   "p1",
		Lines:      []page.Line{{ID: "L1", Text: "a"}, {ID: "L2", Text: "b"}},
		Persistent: true,
		Editable:   true,
	})
	socket := &fakeSocket{}
	socket.queueError(ErrTransport)
	socket.queueSuccess("commit-2")

	r := joinTestRoom(t, fetcher, socket, "Doc")

	fetcher.setPage("Doc", PageMeta{
		ID:         "page1",
		CommitID:   "p2",
		Lines:      []page.Line{{ID: "L1", Text: "a"}, {ID: "L2", Text: "b"}, {ID: "L3", Text: "c"}},
		Persistent: true,
		Editable:   true,
	})

	var calledWith [][]string
	_, err := r.Patch(context.Background(), func(lines []page.Line) ([]string, error) {
		texts := make([]string, len(lines))
		for i, l := range lines {
			texts[i] = l.Text
		}
		calledWith = append(calledWith, texts)
		out := append(append([]string{}, texts...), "z")
		return out, nil
	})
	require.NoError(t, err)

	require.Len(t, calledWith, 2)
	require.Equal(t, []string{"a", "b"}, calledWith[0])
	require.Equal(t, []string{"a", "b", "c"}, calledWith[1])

	snap := r.Snapshot()
	require.Equal(t, "commit-2", snap.ParentID)
}

func TestRoomPushExhaustedAfterRetryBound(t *testing.T) {
	fetcher := newFakeFetcher("p1", "u1")
	fetcher.setPage("Doc", PageMeta{
		ID: "page1", CommitID: "p1",
		Lines: []page.Line{{ID: "L1", Text: "a"}}, Persistent: true, Editable: true,
	})
	socket := &fakeSocket{}
	for i := 0; i < 4; i++ {
		socket.queueError(ErrTransport)
	}

	r := joinTestRoom(t, fetcher, socket, "Doc")
	_, err := r.Insert(context.Background(), "x", page.EndAnchor)
	require.ErrorIs(t, err, ErrPushExhausted)
}

func TestRoomJoinFailsForbiddenOnNonEditable(t *testing.T) {
	fetcher := newFakeFetcher("p1", "u1")
	fetcher.setPage("Doc", PageMeta{ID: "page1", CommitID: "p1", Editable: false})
	socket := &fakeSocket{}

	_, err := Join(context.Background(), fetcher, dialWith(socket), "proj", "Doc", 0)
	require.ErrorIs(t, err, ErrForbidden)
}

func TestRoomCleanupRejectsFurtherOps(t *testing.T) {
	fetcher := newFakeFetcher("p1", "u1")
	fetcher.setPage("Doc", PageMeta{
		ID: "page1", CommitID: "p1",
		Lines: []page.Line{{ID: "L1", Text: "a"}}, Persistent: true, Editable: true,
	})
	socket := &fakeSocket{}
	r, err := Join(context.Background(), fetcher, dialWith(socket), "proj", "Doc", 0)
	require.NoError(t, err)

	require.NoError(t, r.Cleanup())
	_, err = r.Insert(context.Background(), "x", page.EndAnchor)
	require.ErrorIs(t, err, ErrRoomClosed)
}

func TestRoomListenPageUpdateBroadcastsToAllSubscribers(t *testing.T) {
	fetcher := newFakeFetcher("p1", "u1")
	fetcher.setPage("Doc", PageMeta{
		ID: "page1", CommitID: "p1",
		Lines: []page.Line{{ID: "L1", Text: "a"}}, Persistent: true, Editable: true,
	})
	socket := &fakeSocket{}

	r, err := Join(context.Background(), fetcher, dialWith(socket), "proj", "Doc", 0)
	require.NoError(t, err)
	t.Cleanup(func() { _ = r.Cleanup() })

	ch1, cancel1 := r.ListenPageUpdate()
	ch2, cancel2 := r.ListenPageUpdate()
	defer cancel1()
	defer cancel2()

	notif := CommitNotification{ID: "r1", UserID: "other", Changes: nil}
	data, err := json.Marshal(notif)
	require.NoError(t, err)
	r.handleRemoteCommit(Envelope{Event: "commit", Data: data})

	select {
	case got := <-ch1:
		require.Equal(t, "r1", got.ID)
	case <-time.After(time.Second):
		t.Fatal("subscriber 1 did not receive broadcast")
	}
	select {
	case got := <-ch2:
		require.Equal(t, "r1", got.ID)
	case <-time.After(time.Second):
		t.Fatal("subscriber 2 did not receive broadcast")
	}
}
