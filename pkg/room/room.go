package room

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/takker99/scrapbox-core-go/pkg/logger"
	"github.com/takker99/scrapbox-core-go/pkg/page"
)

const (
	defaultRetryBound     = 3
	subscriberBufferSize  = 16
	descriptionLineCount  = 5
)

var lineSplitter = regexp.MustCompile(`\r\n|\n`)

// Snapshot is a read-only, point-in-time view of a room's mirror, safe to
// read from any goroutine.
type Snapshot struct {
	PageID   string
	ParentID string
	Created  bool
	Lines    []page.Line
}

// mirror is the room's authoritative local state. It is only ever
// mutated from inside the run loop goroutine, per the single-owner
// ownership rule in spec §3/§5.
type mirror struct {
	pageID   string
	parentID string
	created  bool
	lines    []page.Line
}

type pushRequest struct {
	ctx       context.Context
	changes   []page.ChangeOp
	recompute func(lines []page.Line) ([]page.ChangeOp, error)
	result    chan pushResult
}

type pushResult struct {
	lines []page.Line
	err   error
}

// Room owns one page's mirror, commit pipeline, conflict retry, and live
// subscription (spec §4.6). The background run loop is the sole mutator
// of its mirror; every mutating method serializes through the same loop
// by sending a pushRequest over cmds.
type Room struct {
	project   string
	title     string
	projectID string
	userID    string

	fetcher    MetadataFetcher
	socket     Socket
	retryBound int

	mir mirror

	cmds      chan pushRequest
	cleanupCh chan chan struct{}

	subsMu    sync.Mutex
	subs      map[int]chan CommitNotification
	nextSubID int

	closed   chan struct{}
	closeOne sync.Once
	stopped  chan struct{}

	snapshot atomic.Pointer[Snapshot]
}

// Join resolves projectId/userId/page metadata in parallel, opens the
// socket, joins the page's editing room, and spawns the background
// live-commit consumer (spec §4.6 Lifecycle). retryBound <= 0 selects the
// default of 3.
func Join(ctx context.Context, fetcher MetadataFetcher, dial func(context.Context) (Socket, error), project, title string, retryBound int) (*Room, error) {
	if retryBound <= 0 {
		retryBound = defaultRetryBound
	}

	var (
		wg                           sync.WaitGroup
		projectID, userID            string
		meta                         PageMeta
		projErr, userErr, pageErr    error
	)
	wg.Add(3)
	go func() { defer wg.Done(); projectID, projErr = fetcher.GetProjectID(ctx, project) }()
	go func() { defer wg.Done(); userID, userErr = fetcher.GetUserID(ctx) }()
	go func() { defer wg.Done(); meta, pageErr = EnsureEditablePage(ctx, fetcher, project, title) }()
	wg.Wait()

	if userErr != nil {
		return nil, userErr
	}
	if projErr != nil {
		return nil, projErr
	}
	if pageErr != nil {
		return nil, pageErr
	}

	socket, err := dial(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransport, err)
	}

	joinData := joinPageRoomRequest{ProjectID: projectID, PageID: meta.ID, ProjectUpdatesStream: false}
	if _, err := socket.Request(ctx, "room:join", joinData); err != nil {
		_ = socket.Disconnect()
		return nil, fmt.Errorf("%w: %v", ErrTransport, err)
	}

	commitCh, err := socket.Responses(ctx, "commit")
	if err != nil {
		_ = socket.Disconnect()
		return nil, fmt.Errorf("%w: %v", ErrTransport, err)
	}

	r := &Room{
		project:    project,
		title:      title,
		projectID:  projectID,
		userID:     userID,
		fetcher:    fetcher,
		socket:     socket,
		retryBound: retryBound,
		mir: mirror{
			pageID:   meta.ID,
			parentID: meta.CommitID,
			created:  meta.Persistent,
			lines:    meta.Lines,
		},
		cmds:      make(chan pushRequest),
		cleanupCh: make(chan chan struct{}),
		subs:      make(map[int]chan CommitNotification),
		closed:    make(chan struct{}),
		stopped:   make(chan struct{}),
	}
	r.publishSnapshot()

	go r.run(commitCh)
	return r, nil
}

func (r *Room) run(commitCh <-chan Envelope) {
	defer close(r.stopped)
	for {
		select {
		case env, ok := <-commitCh:
			if !ok {
				return
			}
			if !r.handleRemoteCommit(env) {
				return
			}
		case req := <-r.cmds:
			r.handlePush(req)
		case done := <-r.cleanupCh:
			_ = r.socket.Disconnect()
			close(done)
			return
		}
	}
}

// handleRemoteCommit folds one incoming commit into the mirror. It returns
// false when the notification cannot be parsed or applied; the run loop
// then exits and later pushes fail ErrRoomClosed.
func (r *Room) handleRemoteCommit(env Envelope) bool {
	var notif CommitNotification
	if err := json.Unmarshal(env.Data, &notif); err != nil {
		logger.Error("page room: malformed commit notification, room unusable", "project", r.project, "title", r.title, "error", err)
		return false
	}

	updated, err := page.TimeOf(page.LineId(notif.ID))
	if err != nil {
		updated = time.Now().Unix()
	}

	lines, err := page.Apply(r.mir.lines, notif.Changes, page.ApplyOptions{UserID: notif.UserID, Updated: updated})
	if err != nil {
		logger.Error("page room: failed to apply remote commit, room unusable", "project", r.project, "title", r.title, "commitId", notif.ID, "error", err)
		return false
	}

	r.mir.parentID = notif.ID
	r.mir.lines = lines
	r.mir.created = true
	r.publishSnapshot()
	r.broadcast(notif)
	return true
}

// handlePush runs the push pipeline (spec §4.6): compute the post-image,
// derive title/descriptions deltas, submit, and on Transport failure
// refetch head and retry up to retryBound times.
func (r *Room) handlePush(req pushRequest) {
	changes := req.changes

	for attempt := 0; ; attempt++ {
		if req.recompute != nil {
			var err error
			changes, err = req.recompute(r.mir.lines)
			if err != nil {
				req.result <- pushResult{err: err}
				return
			}
		}

		trial, err := page.Apply(copyLines(r.mir.lines), changes, page.ApplyOptions{UserID: r.userID, Updated: time.Now().Unix()})
		if err != nil {
			req.result <- pushResult{err: err}
			return
		}

		batch := append([]page.ChangeOp{}, changes...)
		if firstText(r.mir.lines) != firstText(trial) || !r.mir.created {
			batch = append(batch, page.NewTitleOp(firstText(trial)))
		}
		oldDesc := strings.Join(descriptionTexts(r.mir.lines), "\n")
		newDesc := strings.Join(descriptionTexts(trial), "\n")
		if oldDesc != newDesc {
			batch = append(batch, page.NewDescriptionsOp(descriptionTexts(trial)))
		}

		data := commitRequest{
			Kind:      "page",
			ProjectID: r.projectID,
			ParentID:  r.mir.parentID,
			PageID:    r.mir.pageID,
			UserID:    r.userID,
			Changes:   batch,
			Cursor:    nil,
			Freeze:    true,
		}

		raw, reqErr := r.socket.Request(req.ctx, "commit", data)
		if reqErr != nil {
			if attempt >= r.retryBound {
				req.result <- pushResult{err: ErrPushExhausted}
				return
			}
			meta, ferr := EnsureEditablePage(req.ctx, r.fetcher, r.project, r.title)
			if ferr != nil {
				req.result <- pushResult{err: ferr}
				return
			}
			r.mir.parentID = meta.CommitID
			r.mir.lines = meta.Lines
			r.mir.created = meta.Persistent
			r.publishSnapshot()
			continue
		}

		var result CommitResult
		if err := json.Unmarshal(raw, &result); err != nil {
			req.result <- pushResult{err: fmt.Errorf("%w: %v", ErrTransport, err)}
			return
		}

		r.mir.parentID = result.CommitID
		r.mir.created = true
		r.mir.lines = trial
		r.publishSnapshot()
		req.result <- pushResult{lines: trial}
		return
	}
}

func (r *Room) push(ctx context.Context, changes []page.ChangeOp, recompute func([]page.Line) ([]page.ChangeOp, error)) ([]page.Line, error) {
	select {
	case <-r.closed:
		return nil, ErrRoomClosed
	default:
	}

	result := make(chan pushResult, 1)
	select {
	case r.cmds <- pushRequest{ctx: ctx, changes: changes, recompute: recompute, result: result}:
	case <-r.stopped:
		return nil, ErrRoomClosed
	}

	res := <-result
	return res.lines, res.err
}

// Insert splits text on newlines and inserts one line per part, all
// anchored before beforeID (spec §4.6 high-level ops). An empty beforeID
// means page.EndAnchor.
func (r *Room) Insert(ctx context.Context, text string, beforeID page.LineId) ([]page.Line, error) {
	if beforeID == "" {
		beforeID = page.EndAnchor
	}
	var ops []page.ChangeOp
	for _, part := range lineSplitter.Split(text, -1) {
		ops = append(ops, page.NewInsertOp(beforeID, page.NewLineID(r.userID), part))
	}
	return r.push(ctx, ops, nil)
}

// Remove deletes a single line by id.
func (r *Room) Remove(ctx context.Context, lineID page.LineId) ([]page.Line, error) {
	return r.push(ctx, []page.ChangeOp{page.NewDeleteOp(lineID)}, nil)
}

// Update replaces the text of a single line by id.
func (r *Room) Update(ctx context.Context, text string, lineID page.LineId) ([]page.Line, error) {
	return r.push(ctx, []page.ChangeOp{page.NewUpdateOp(lineID, text)}, nil)
}

// Patch runs f against the current (or, on conflict, refreshed) lines to
// get a whole-document replacement, diffs it into change-ops, and pushes.
// On conflict the refresh re-invokes f against the refreshed lines,
// giving consistent-read retry semantics.
func (r *Room) Patch(ctx context.Context, f func(lines []page.Line) ([]string, error)) ([]page.Line, error) {
	recompute := func(lines []page.Line) ([]page.ChangeOp, error) {
		newTexts, err := f(lines)
		if err != nil {
			return nil, err
		}
		return page.DiffToChanges(lines, newTexts, r.userID)
	}
	return r.push(ctx, nil, recompute)
}

// ListenPageUpdate hands out a channel of this room's incoming commit
// notifications. Multiple subscribers receive the same events; the
// returned cancel function unsubscribes and closes the channel.
func (r *Room) ListenPageUpdate() (<-chan CommitNotification, func()) {
	ch := make(chan CommitNotification, subscriberBufferSize)

	r.subsMu.Lock()
	id := r.nextSubID
	r.nextSubID++
	r.subs[id] = ch
	r.subsMu.Unlock()

	cancel := func() {
		r.subsMu.Lock()
		if existing, ok := r.subs[id]; ok {
			delete(r.subs, id)
			close(existing)
		}
		r.subsMu.Unlock()
	}
	return ch, cancel
}

func (r *Room) broadcast(notif CommitNotification) {
	r.subsMu.Lock()
	defer r.subsMu.Unlock()
	for _, ch := range r.subs {
		select {
		case ch <- notif:
		default:
		}
	}
}

// Cleanup disconnects the socket; every subsequent call to a mutating
// method fails ErrRoomClosed.
func (r *Room) Cleanup() error {
	alreadyClosed := true
	r.closeOne.Do(func() {
		alreadyClosed = false
		close(r.closed)
	})
	if alreadyClosed {
		return nil
	}

	done := make(chan struct{})
	select {
	case r.cleanupCh <- done:
		<-done
	case <-r.stopped:
	}

	r.subsMu.Lock()
	for id, ch := range r.subs {
		close(ch)
		delete(r.subs, id)
	}
	r.subsMu.Unlock()
	return nil
}

// Snapshot returns a read-only view of the current mirror, safe to call
// from any goroutine.
func (r *Room) Snapshot() Snapshot {
	return *r.snapshot.Load()
}

func (r *Room) publishSnapshot() {
	linesCopy := copyLines(r.mir.lines)
	r.snapshot.Store(&Snapshot{
		PageID:   r.mir.pageID,
		ParentID: r.mir.parentID,
		Created:  r.mir.created,
		Lines:    linesCopy,
	})
}

func copyLines(lines []page.Line) []page.Line {
	out := make([]page.Line, len(lines))
	copy(out, lines)
	return out
}

func firstText(lines []page.Line) string {
	if len(lines) == 0 {
		return ""
	}
	return lines[0].Text
}

func descriptionTexts(lines []page.Line) []string {
	end := descriptionLineCount + 1
	if end > len(lines) {
		end = len(lines)
	}
	if end <= 1 {
		return nil
	}
	out := make([]string, 0, end-1)
	for _, l := range lines[1:end] {
		out = append(out, l.Text)
	}
	return out
}
