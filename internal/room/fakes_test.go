package room

import (
	"context"
	"fmt"
	"math/rand"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"sudooom.arena/internal/model"
	"sudooom.arena/internal/reconnect"
)

// fakeClock 手动推进的时钟
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

type pendingTask struct {
	seq    int
	name   string
	target string
	due    time.Time
	fn     func(ctx context.Context)
}

// fakeScheduler 虚拟时间调度器，Advance 时按到期顺序同步执行
type fakeScheduler struct {
	mu      sync.Mutex
	clock   *fakeClock
	seq     int
	pending []*pendingTask
}

func (s *fakeScheduler) After(target, name string, delay time.Duration, fn func(ctx context.Context)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.seq++
	s.pending = append(s.pending, &pendingTask{
		seq:    s.seq,
		name:   name,
		target: target,
		due:    s.clock.Now().Add(delay),
		fn:     fn,
	})
	return nil
}

// Advance 推进虚拟时间并执行到期任务（包括执行过程中新登记的任务）
func (s *fakeScheduler) Advance(d time.Duration) {
	end := s.clock.Now().Add(d)
	for {
		task := s.popDue(end)
		if task == nil {
			break
		}
		s.clock.set(task.due)
		task.fn(context.Background())
	}
	s.clock.set(end)
}

func (s *fakeScheduler) popDue(end time.Time) *pendingTask {
	s.mu.Lock()
	defer s.mu.Unlock()

	sort.SliceStable(s.pending, func(i, j int) bool {
		if s.pending[i].due.Equal(s.pending[j].due) {
			return s.pending[i].seq < s.pending[j].seq
		}
		return s.pending[i].due.Before(s.pending[j].due)
	})
	if len(s.pending) == 0 || s.pending[0].due.After(end) {
		return nil
	}
	task := s.pending[0]
	s.pending = s.pending[1:]
	return task
}

func (s *fakeScheduler) Pending(name string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, t := range s.pending {
		if name == "" || t.name == name {
			n++
		}
	}
	return n
}

type sentEvent struct {
	conns []model.ConnID
	event string
	data  any
}

// fakeEmitter 记录所有下行事件
type fakeEmitter struct {
	mu   sync.Mutex
	sent []sentEvent
}

func (e *fakeEmitter) SendTo(conns []model.ConnID, event string, data any) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.sent = append(e.sent, sentEvent{conns: append([]model.ConnID(nil), conns...), event: event, data: data})
}

// Events 指定事件名的所有记录
func (e *fakeEmitter) Events(event string) []sentEvent {
	e.mu.Lock()
	defer e.mu.Unlock()

	var out []sentEvent
	for _, s := range e.sent {
		if s.event == event {
			out = append(out, s)
		}
	}
	return out
}

// To 发给某个连接的指定事件
func (e *fakeEmitter) To(conn model.ConnID, event string) []sentEvent {
	var out []sentEvent
	for _, s := range e.Events(event) {
		for _, c := range s.conns {
			if c == conn {
				out = append(out, s)
				break
			}
		}
	}
	return out
}

func (e *fakeEmitter) Reset() {
	e.mu.Lock()
	e.sent = nil
	e.mu.Unlock()
}

// fakeResults 记录归档的对局结果
type fakeResults struct {
	mu      sync.Mutex
	results []model.MatchResult
}

func (f *fakeResults) SaveResult(ctx context.Context, result model.MatchResult) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.results = append(f.results, result)
	return nil
}

func (f *fakeResults) Count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.results)
}

// fakeTokens 明文凭证 roomId|slot|name
type fakeTokens struct{}

func (fakeTokens) Issue(seat model.Seat) (string, error) {
	return fmt.Sprintf("%s|%d|%s", seat.RoomID, seat.Slot, seat.Name), nil
}

func (fakeTokens) Parse(token string) (model.Seat, error) {
	parts := strings.SplitN(token, "|", 3)
	if len(parts) != 3 {
		return model.Seat{}, fmt.Errorf("malformed token")
	}
	slot, err := strconv.Atoi(parts[1])
	if err != nil {
		return model.Seat{}, err
	}
	return model.Seat{RoomID: model.RoomID(parts[0]), Slot: model.Slot(slot), Name: parts[2]}, nil
}

// harness 房间测试环境
type harness struct {
	clock     *fakeClock
	scheduler *fakeScheduler
	emitter   *fakeEmitter
	tracker   *reconnect.Tracker
	results   *fakeResults
	opts      Options
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	clock := newFakeClock()
	h := &harness{
		clock:     clock,
		scheduler: &fakeScheduler{clock: clock},
		emitter:   &fakeEmitter{},
		tracker:   reconnect.NewTracker(),
		results:   &fakeResults{},
	}
	h.opts = Options{
		Rules:     model.DefaultRules(),
		Emitter:   h.emitter,
		Scheduler: h.scheduler,
		Tracker:   h.tracker,
		Results:   h.results,
		Rand:      rand.New(rand.NewSource(1)),
		Now:       clock.Now,
	}
	return h
}

// newRoom 创建一个没有方块的房间，便于控制爆炸范围
func (h *harness) newRoom(maxPlayers int) *Room {
	r := NewRoom("room-1", maxPlayers, h.opts)
	r.blocks = make(map[model.Cell]model.Block)
	return r
}

// playingRoom 两名玩家并已开局
func (h *harness) playingRoom(t *testing.T) *Room {
	t.Helper()

	r := h.newRoom(4)
	_, err := r.Join("c1", "alice")
	if err != nil {
		t.Fatal(err)
	}
	_, err = r.Join("c2", "bob")
	if err != nil {
		t.Fatal(err)
	}
	if !r.Start() {
		t.Fatal("room did not start")
	}
	h.emitter.Reset()
	return r
}
