package chatview

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ruriclub/supportdesk/internal/backend"
	"github.com/ruriclub/supportdesk/internal/channel"
	"github.com/ruriclub/supportdesk/internal/handoff"
	"github.com/ruriclub/supportdesk/internal/model"
	"github.com/ruriclub/supportdesk/internal/presentation"
	"github.com/ruriclub/supportdesk/internal/session"
	"github.com/ruriclub/supportdesk/pkg/logger"
)

var (
	maria = model.Identity{ID: 4, DisplayName: "Maria Lopez", Role: model.RoleClient}
	alice = model.Identity{ID: 7, DisplayName: "Alice Reyes", Role: model.RoleEmployee}
	admin = model.Identity{ID: adminID, DisplayName: "Admin", Role: model.RoleAdmin}
)

func newClientChat(t *testing.T, api *fakeAPI) *ClientChat {
	t.Helper()
	dir, ch := newStack(t, api)
	c, err := NewClientChat(maria, dir, ch, ClientOptions{AIAgentID: aiAgentID, AIName: "Ruri AI"}, logger.NewNop())
	if err != nil {
		t.Fatalf("new client chat: %v", err)
	}
	return c
}

func mountClient(t *testing.T, api *fakeAPI) *ClientChat {
	t.Helper()
	c := newClientChat(t, api)
	if err := c.Mount(context.Background()); err != nil {
		t.Fatalf("mount: %v", err)
	}
	return c
}

func bodies(bs []presentation.Bubble) []string {
	out := make([]string, len(bs))
	for i, b := range bs {
		out[i] = b.Body
	}
	return out
}

func countBody(bs []presentation.Bubble, body string) int {
	n := 0
	for _, b := range bs {
		if b.Body == body {
			n++
		}
	}
	return n
}

func TestRepliesWithoutEscalationStayWithAssistant(t *testing.T) {
	api := newFakeAPI()
	c := mountClient(t, api)

	for _, text := range []string{"hi", "what are your hours?", "thanks"} {
		if err := c.Send(context.Background(), text); err != nil {
			t.Fatalf("send %q: %v", text, err)
		}
		if c.State() != handoff.AIActive {
			t.Fatalf("state moved to %s after %q", c.State(), text)
		}
	}
	if n := api.count("/chat"); n != 3 {
		t.Fatalf("expected 3 assistant calls, got %d", n)
	}
	bs := c.Bubbles()
	if len(bs) != 6 {
		t.Fatalf("expected 6 bubbles, got %v", bodies(bs))
	}
	if !bs[0].IsOwn || bs[1].IsOwn || bs[1].DisplayName != "Ruri AI" {
		t.Fatalf("unexpected bubbles %+v", bs[:2])
	}
}

func TestEscalationHandsOffToHuman(t *testing.T) {
	api := newFakeAPI()
	api.aiReplies = []model.ChatResponse{{Response: "Let me connect you to a live agent.", HumanNeeded: true}}
	api.assignNext = model.RequestHumanResponse{AssignedEmployee: 7, AssignedName: "Alice Reyes"}
	c := mountClient(t, api)

	if err := c.Send(context.Background(), "I want to talk to a person"); err != nil {
		t.Fatalf("send: %v", err)
	}
	if c.State() != handoff.HumanActive {
		t.Fatalf("expected HUMAN_ACTIVE, got %s", c.State())
	}
	if countBody(c.Bubbles(), "You are now connected to Alice Reyes.") != 1 {
		t.Fatalf("missing connection notice: %v", bodies(c.Bubbles()))
	}

	for _, text := range []string{"hello?", "I need help with my order"} {
		if err := c.Send(context.Background(), text); err != nil {
			t.Fatalf("send %q: %v", text, err)
		}
	}
	if n := api.count("/chat"); n != 1 {
		t.Fatalf("assistant called %d times, want 1", n)
	}
	if n := api.count("/chat/client/send"); n != 2 {
		t.Fatalf("human route called %d times, want 2", n)
	}
}

func TestTranscriptKeepsSubmissionOrder(t *testing.T) {
	api := newFakeAPI()
	api.assignments[4] = model.AssignmentResponse{EmployeeID: 7, EmployeeName: "Alice Reyes"}
	api.log = []model.Message{
		{SenderID: 7, ReceiverID: 4, Body: "A", CreatedAt: at(1)},
		{SenderID: 7, ReceiverID: 4, Body: "B", CreatedAt: at(3)},
	}
	api.withRecord = true
	api.clock = func() time.Time { return at(2).Time }
	c := mountClient(t, api)

	if err := c.Send(context.Background(), "C"); err != nil {
		t.Fatalf("send: %v", err)
	}
	got := bodies(c.Bubbles())
	want := []string{"A", "B", "C"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}

func TestFailedSendKeepsTextAndAddsOneNotice(t *testing.T) {
	api := newFakeAPI()
	api.assignments[4] = model.AssignmentResponse{EmployeeID: 7, EmployeeName: "Alice Reyes"}
	api.dropPath = "/chat/client/send"
	c := mountClient(t, api)

	err := c.Send(context.Background(), "are you there?")
	var netErr *backend.NetworkError
	if !errors.As(err, &netErr) {
		t.Fatalf("expected network failure, got %v", err)
	}

	bs := c.Bubbles()
	if len(bs) != 2 {
		t.Fatalf("expected message and one notice, got %v", bodies(bs))
	}
	if bs[0].Body != "are you there?" || bs[0].Status != channel.StatusFailed || !bs[0].IsOwn {
		t.Fatalf("composed message altered: %+v", bs[0])
	}
	if bs[1].Body != NoticeSendFailed || bs[1].Origin != model.OriginSystem {
		t.Fatalf("unexpected notice: %+v", bs[1])
	}
	if c.Status().Pending != 0 {
		t.Fatalf("failed send still pending")
	}
}

func TestReloadWithAssignmentSkipsAssistant(t *testing.T) {
	api := newFakeAPI()
	api.assignments[4] = model.AssignmentResponse{EmployeeID: 7, EmployeeName: "Alice Reyes"}
	c := mountClient(t, api)

	if c.State() != handoff.HumanActive {
		t.Fatalf("expected HUMAN_ACTIVE at mount, got %s", c.State())
	}
	if err := c.Send(context.Background(), "back again"); err != nil {
		t.Fatalf("send: %v", err)
	}
	if api.count("/chat") != 0 {
		t.Fatalf("assistant must not be called after reload with an assignment")
	}
	sends := api.sent()
	if len(sends) != 1 || sends[0].SenderID != 4 || sends[0].ReceiverID != 7 {
		t.Fatalf("unexpected human sends %+v", sends)
	}
}

func TestEscalationFailureRetriesOnNextSend(t *testing.T) {
	api := newFakeAPI()
	api.aiReplies = []model.ChatResponse{{Response: "Connecting you to a live agent.", HumanNeeded: true}}
	api.assignFails = true
	api.assignNext = model.RequestHumanResponse{AssignedEmployee: 13, AssignedName: "Sam Ortiz"}
	c := mountClient(t, api)

	if err := c.Send(context.Background(), "human please"); err != nil {
		t.Fatalf("send: %v", err)
	}
	if c.State() != handoff.EscalationRequested {
		t.Fatalf("expected ESCALATION_REQUESTED, got %s", c.State())
	}
	if countBody(c.Bubbles(), NoticeNoAgent) != 1 {
		t.Fatalf("missing no-agent notice: %v", bodies(c.Bubbles()))
	}
	if !c.Status().Retryable() {
		t.Fatalf("failed assignment should be retryable, err=%v", c.Status().Err)
	}

	api.mu.Lock()
	api.assignFails = false
	api.mu.Unlock()

	if err := c.Send(context.Background(), "still there?"); err != nil {
		t.Fatalf("retry send: %v", err)
	}
	if c.State() != handoff.HumanActive {
		t.Fatalf("expected HUMAN_ACTIVE after retry, got %s", c.State())
	}
	if api.count("/chat") != 1 || api.count("/chat/client/send") != 1 {
		t.Fatalf("retry should route through the human channel: chat=%d send=%d",
			api.count("/chat"), api.count("/chat/client/send"))
	}
}

func TestFailedEscalationRetryRequestsOncePerSend(t *testing.T) {
	api := newFakeAPI()
	api.aiReplies = []model.ChatResponse{
		{Response: "Connecting you to a live agent.", HumanNeeded: true},
		{Response: "Still looking for an agent.", HumanNeeded: true},
	}
	api.assignFails = true
	c := mountClient(t, api)

	for _, text := range []string{"human please", "anyone?"} {
		if err := c.Send(context.Background(), text); err != nil {
			t.Fatalf("send %q: %v", text, err)
		}
	}
	if n := api.count("/chat/request-human"); n != 2 {
		t.Fatalf("expected one assignment request per send, got %d", n)
	}
	if n := countBody(c.Bubbles(), NoticeNoAgent); n != 2 {
		t.Fatalf("expected one no-agent notice per send, got %d: %v", n, bodies(c.Bubbles()))
	}
	if c.State() != handoff.EscalationRequested {
		t.Fatalf("expected ESCALATION_REQUESTED, got %s", c.State())
	}
}

func TestSendAfterFailedMountLookupUsesAssignment(t *testing.T) {
	api := newFakeAPI()
	api.assignments[4] = model.AssignmentResponse{EmployeeID: 7, EmployeeName: "Alice Reyes"}
	api.dropPath = "/assignment/4"
	c := newClientChat(t, api)

	if err := c.Mount(context.Background()); err == nil {
		t.Fatalf("expected the mount lookup to fail")
	}
	if c.State() != handoff.AIActive {
		t.Fatalf("expected AI_ACTIVE after a failed lookup, got %s", c.State())
	}

	api.mu.Lock()
	api.dropPath = ""
	api.mu.Unlock()

	if err := c.Send(context.Background(), "my order is late"); err != nil {
		t.Fatalf("send: %v", err)
	}
	if api.count("/chat") != 0 {
		t.Fatalf("client with an assignment was routed through the assistant")
	}
	if api.count("/chat/client/send") != 1 {
		t.Fatalf("expected one human send, got %d", api.count("/chat/client/send"))
	}
	if c.State() != handoff.HumanActive {
		t.Fatalf("expected HUMAN_ACTIVE, got %s", c.State())
	}
	if c.Status().Err != nil {
		t.Fatalf("lookup error should clear once resolved, got %v", c.Status().Err)
	}
}

func TestSendFailsWhileAssignmentLookupFails(t *testing.T) {
	api := newFakeAPI()
	api.assignments[4] = model.AssignmentResponse{EmployeeID: 7, EmployeeName: "Alice Reyes"}
	api.dropPath = "/assignment/4"
	c := newClientChat(t, api)

	if err := c.Mount(context.Background()); err == nil {
		t.Fatalf("expected the mount lookup to fail")
	}
	err := c.Send(context.Background(), "my order is late")
	var netErr *backend.NetworkError
	if !errors.As(err, &netErr) {
		t.Fatalf("expected network failure, got %v", err)
	}
	if api.count("/chat") != 0 || api.count("/chat/client/send") != 0 {
		t.Fatalf("nothing may be delivered on an unresolved lookup")
	}
	bs := c.Bubbles()
	if len(bs) != 2 || bs[0].Status != channel.StatusFailed || bs[1].Body != NoticeSendFailed {
		t.Fatalf("expected failed message and one notice, got %v", bodies(bs))
	}
	if st := c.Status(); st.Pending != 0 || !st.Retryable() {
		t.Fatalf("unexpected status %+v", st)
	}
}

func TestPendingWhileSendHangs(t *testing.T) {
	api := newFakeAPI()
	api.assignments[4] = model.AssignmentResponse{EmployeeID: 7, EmployeeName: "Alice Reyes"}
	api.hangPath = "/chat/client/send"
	c := mountClient(t, api)

	done := make(chan error, 1)
	go func() { done <- c.Send(context.Background(), "hello") }()
	waitEntered(t, api, "/chat/client/send")

	st := c.Status()
	if st.Pending != 1 {
		t.Fatalf("expected one pending send, got %+v", st)
	}
	bs := c.Bubbles()
	if len(bs) != 1 || bs[0].Status != channel.StatusPending {
		t.Fatalf("hanging send must render as pending, got %+v", bs)
	}

	api.release()
	if err := <-done; err != nil {
		t.Fatalf("send: %v", err)
	}
	if c.Status().Pending != 0 || c.Bubbles()[0].Status != channel.StatusSent {
		t.Fatalf("send not settled: %+v", c.Bubbles())
	}
}

func TestLoadingWhileMountHangs(t *testing.T) {
	api := newFakeAPI()
	api.hangPath = "/assignment/4"
	dir, ch := newStack(t, api)
	c, _ := NewClientChat(maria, dir, ch, ClientOptions{AIAgentID: aiAgentID}, logger.NewNop())

	done := make(chan error, 1)
	go func() { done <- c.Mount(context.Background()) }()
	waitEntered(t, api, "/assignment/4")

	if st := c.Status(); !st.Loading || st.Empty {
		t.Fatalf("expected loading and not empty, got %+v", st)
	}
	api.release()
	if err := <-done; err != nil {
		t.Fatalf("mount: %v", err)
	}
	if st := c.Status(); st.Loading {
		t.Fatalf("still loading after mount: %+v", st)
	}
}

func TestLateResponseAfterRemountIsDiscarded(t *testing.T) {
	api := newFakeAPI()
	api.hangPath = "/chat"
	c := mountClient(t, api)

	done := make(chan error, 1)
	go func() { done <- c.Send(context.Background(), "first session") }()
	waitEntered(t, api, "/chat")

	if err := c.Mount(context.Background()); err != nil {
		t.Fatalf("remount: %v", err)
	}
	api.release()
	if err := <-done; !errors.Is(err, ErrStale) {
		t.Fatalf("expected stale response, got %v", err)
	}
	if bs := c.Bubbles(); len(bs) != 0 {
		t.Fatalf("stale response leaked into the new mount: %v", bodies(bs))
	}
	if c.Status().Pending != 0 {
		t.Fatalf("new mount inherited a pending send")
	}
}

func TestUnmountedViewRejectsOperations(t *testing.T) {
	api := newFakeAPI()
	c := mountClient(t, api)
	c.Unmount()

	if err := c.Send(context.Background(), "hi"); !errors.Is(err, ErrNotMounted) {
		t.Fatalf("expected ErrNotMounted, got %v", err)
	}
	if err := c.Refresh(context.Background()); !errors.Is(err, ErrNotMounted) {
		t.Fatalf("expected ErrNotMounted, got %v", err)
	}
	if err := c.Send(context.Background(), "   "); !errors.Is(err, ErrEmptyMessage) {
		t.Fatalf("expected ErrEmptyMessage, got %v", err)
	}
}

func TestViewsRequireMatchingRole(t *testing.T) {
	api := newFakeAPI()
	dir, ch := newStack(t, api)
	if _, err := NewClientChat(alice, dir, ch, ClientOptions{}, logger.NewNop()); !errors.Is(err, session.ErrRoleMismatch) {
		t.Fatalf("expected role mismatch, got %v", err)
	}
	if _, err := NewEmployeeInbox(maria, dir, ch, logger.NewNop()); !errors.Is(err, session.ErrRoleMismatch) {
		t.Fatalf("expected role mismatch, got %v", err)
	}
	if _, err := NewAdminInbox(alice, dir, ch, logger.NewNop()); !errors.Is(err, session.ErrRoleMismatch) {
		t.Fatalf("expected role mismatch, got %v", err)
	}
}

func TestEmployeeWithoutAssignmentsShowsEmptyState(t *testing.T) {
	api := newFakeAPI()
	dir, ch := newStack(t, api)
	in, _ := NewEmployeeInbox(alice, dir, ch, logger.NewNop())

	if err := in.Mount(context.Background()); err != nil {
		t.Fatalf("mount: %v", err)
	}
	st := in.Status()
	if st.Loading || !st.Empty || st.Err != nil {
		t.Fatalf("expected settled empty state, got %+v", st)
	}
	if got := in.Counterparts(); got == nil || len(got) != 0 {
		t.Fatalf("expected empty counterparts, got %#v", got)
	}
}

func TestEmployeeInboxConversations(t *testing.T) {
	api := newFakeAPI()
	api.clients[7] = []model.AssignedClient{{UserID: 4, FullName: "Maria Lopez"}}
	api.log = []model.Message{{SenderID: 4, ReceiverID: 7, Body: "help", CreatedAt: at(1), ChatType: model.ChatTypeClientEmployee}}
	dir, ch := newStack(t, api)
	in, _ := NewEmployeeInbox(alice, dir, ch, logger.NewNop())
	ctx := context.Background()

	if err := in.Mount(ctx); err != nil {
		t.Fatalf("mount: %v", err)
	}
	if err := in.Send(ctx, "hi"); !errors.Is(err, ErrNoConversation) {
		t.Fatalf("expected ErrNoConversation, got %v", err)
	}
	if err := in.Select(ctx, 99); !errors.Is(err, ErrUnknownCounterpart) {
		t.Fatalf("expected ErrUnknownCounterpart, got %v", err)
	}
	if err := in.Select(ctx, 4); err != nil {
		t.Fatalf("select: %v", err)
	}
	bs := in.Bubbles()
	if len(bs) != 1 || bs[0].IsOwn || bs[0].DisplayName != "Maria Lopez" {
		t.Fatalf("unexpected history %+v", bs)
	}

	if err := in.Send(ctx, "on it"); err != nil {
		t.Fatalf("send: %v", err)
	}
	bs = in.Bubbles()
	if len(bs) != 2 || !bs[1].IsOwn || bs[1].DisplayName != "You" || bs[1].Status != channel.StatusSent {
		t.Fatalf("unexpected transcript after send %+v", bs)
	}
	if api.count("/chat/employee/reply") != 1 {
		t.Fatalf("reply endpoint not used")
	}

	if err := in.SetTab(TabAdmin); err != nil {
		t.Fatalf("set tab: %v", err)
	}
	people := in.Counterparts()
	if len(people) != 1 || people[0].ID != adminID || people[0].Role != model.RoleAdmin {
		t.Fatalf("unexpected admin tab %+v", people)
	}
	if err := in.Select(ctx, adminID); err != nil {
		t.Fatalf("select admin: %v", err)
	}
	if err := in.Send(ctx, "need a refund approved"); err != nil {
		t.Fatalf("send to admin: %v", err)
	}
	if api.count("/chat/admin/employee-to-admin") != 1 {
		t.Fatalf("employee-to-admin endpoint not used")
	}
	if got := bodies(in.Bubbles()); len(got) != 1 || got[0] != "need a refund approved" {
		t.Fatalf("unexpected admin conversation %v", got)
	}
}

func TestRefreshKeepsLookupFailure(t *testing.T) {
	api := newFakeAPI()
	api.clients[7] = []model.AssignedClient{{UserID: 4, FullName: "Maria Lopez"}}
	dir, ch := newStack(t, api)
	in, _ := NewEmployeeInbox(alice, dir, ch, logger.NewNop())
	ctx := context.Background()

	if err := in.Mount(ctx); err != nil {
		t.Fatalf("mount: %v", err)
	}
	if err := in.Select(ctx, 4); err != nil {
		t.Fatalf("select: %v", err)
	}

	api.mu.Lock()
	api.dropPath = "/employee/7/assignments"
	api.mu.Unlock()

	if err := in.Refresh(ctx); err == nil {
		t.Fatalf("expected the counterpart lookup to fail")
	}
	if st := in.Status(); st.Err == nil || !st.Retryable() {
		t.Fatalf("a successful history load must not hide the lookup failure, got %+v", st)
	}
}

func TestAdminInbox(t *testing.T) {
	api := newFakeAPI()
	api.employees = []model.EmployeeSummary{{UserID: 7, FullName: "Alice Reyes"}}
	api.withRecord = true
	dir, ch := newStack(t, api)
	in, _ := NewAdminInbox(admin, dir, ch, logger.NewNop())
	ctx := context.Background()

	if err := in.Mount(ctx); err != nil {
		t.Fatalf("mount: %v", err)
	}
	if err := in.SetTab(TabAdmin); err == nil {
		t.Fatalf("admins have no admin tab")
	}
	if err := in.Select(ctx, 7); err != nil {
		t.Fatalf("select: %v", err)
	}
	if err := in.Send(ctx, "status update?"); err != nil {
		t.Fatalf("send: %v", err)
	}
	if api.count("/admin/chat/send") != 1 || api.count("/chat/admin/7") != 2 {
		t.Fatalf("unexpected calls send=%d history=%d", api.count("/admin/chat/send"), api.count("/chat/admin/7"))
	}
	bs := in.Bubbles()
	if len(bs) != 1 || !bs[0].IsOwn {
		t.Fatalf("expected one own message, got %+v", bs)
	}
}

func TestSwitchingSelectionDropsOldHistory(t *testing.T) {
	api := newFakeAPI()
	api.clients[7] = []model.AssignedClient{{UserID: 4, FullName: "Maria Lopez"}, {UserID: 5, FullName: "Ben Cho"}}
	api.log = []model.Message{{SenderID: 4, ReceiverID: 7, Body: "from maria", CreatedAt: at(1)}}
	dir, ch := newStack(t, api)
	in, _ := NewEmployeeInbox(alice, dir, ch, logger.NewNop())
	ctx := context.Background()
	if err := in.Mount(ctx); err != nil {
		t.Fatalf("mount: %v", err)
	}

	api.mu.Lock()
	api.hangPath = "/chat/employee/7/client/4"
	api.mu.Unlock()

	done := make(chan error, 1)
	go func() { done <- in.Select(ctx, 4) }()
	waitEntered(t, api, "/chat/employee/7/client/4")

	if err := in.Select(ctx, 5); err != nil {
		t.Fatalf("select ben: %v", err)
	}
	api.release()
	if err := <-done; !errors.Is(err, ErrStale) {
		t.Fatalf("expected stale history, got %v", err)
	}
	if sel := in.Selected(); sel == nil || sel.ID != 5 {
		t.Fatalf("unexpected selection %+v", sel)
	}
	if bs := in.Bubbles(); len(bs) != 0 {
		t.Fatalf("maria's history leaked into ben's conversation: %v", bodies(bs))
	}
}
