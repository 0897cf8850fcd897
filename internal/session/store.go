package session

import (
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/yokitheyo/gamdlbot/internal/model"
)

type Store struct {
	mu       sync.Mutex
	sessions map[string]*model.Session
	retired  map[string]struct{} // destroyed tokens are never handed out again
	now      func() time.Time
}

func NewStore() *Store {
	return &Store{
		sessions: make(map[string]*model.Session),
		retired:  make(map[string]struct{}),
		now:      time.Now,
	}
}

func (st *Store) Create(chatID, userID int64, urls []string) model.Session {
	st.mu.Lock()
	defer st.mu.Unlock()
	token := st.newTokenLocked()
	s := &model.Session{
		Token:     token,
		URLs:      append([]string(nil), urls...),
		ChatID:    chatID,
		UserID:    userID,
		State:     model.StateCollecting,
		CreatedAt: st.now(),
	}
	st.sessions[token] = s
	return s.Clone()
}

func (st *Store) newTokenLocked() string {
	for {
		token := strings.ReplaceAll(uuid.New().String(), "-", "")
		if _, live := st.sessions[token]; live {
			continue
		}
		if _, dead := st.retired[token]; dead {
			continue
		}
		return token
	}
}

func (st *Store) Get(token string) (model.Session, error) {
	st.mu.Lock()
	defer st.mu.Unlock()
	s, ok := st.sessions[token]
	if !ok {
		return model.Session{}, model.ErrSessionNotFound
	}
	return s.Clone(), nil
}

func (st *Store) Alive(token string) bool {
	st.mu.Lock()
	defer st.mu.Unlock()
	_, ok := st.sessions[token]
	return ok
}

// Update runs fn against the live session under the store lock, so the
// existence check and the mutation cannot be interleaved with another flow.
// fn must not block.
func (st *Store) Update(token string, fn func(*model.Session) error) (model.Session, error) {
	st.mu.Lock()
	defer st.mu.Unlock()
	s, ok := st.sessions[token]
	if !ok {
		return model.Session{}, model.ErrSessionNotFound
	}
	if err := fn(s); err != nil {
		return s.Clone(), err
	}
	return s.Clone(), nil
}

// Begin records the chosen preset and mode and claims the session for a job
// run in one locked step. Only one caller can win for a given token; later
// callers get ErrAlreadyRunning and leave the winner's choice untouched.
func (st *Store) Begin(token, preset string, mode model.SendMode) (model.Session, error) {
	st.mu.Lock()
	defer st.mu.Unlock()
	s, ok := st.sessions[token]
	if !ok {
		return model.Session{}, model.ErrSessionNotFound
	}
	if s.State == model.StateRunning {
		return s.Clone(), model.ErrAlreadyRunning
	}
	next := *s
	if next.State == model.StateCollecting {
		if err := model.TransitionSession(&next, model.StatePresetChosen); err != nil {
			return s.Clone(), err
		}
	}
	next.Preset = preset
	next.Mode = mode
	if err := model.TransitionSession(&next, model.StateRunning); err != nil {
		return s.Clone(), err
	}
	*s = next
	return s.Clone(), nil
}

func (st *Store) Remove(token string) (model.Session, bool) {
	st.mu.Lock()
	defer st.mu.Unlock()
	s, ok := st.sessions[token]
	if !ok {
		return model.Session{}, false
	}
	delete(st.sessions, token)
	st.retired[token] = struct{}{}
	snap := s.Clone()
	s.State = model.StateTerminal
	return snap, true
}

func (st *Store) Len() int {
	st.mu.Lock()
	defer st.mu.Unlock()
	return len(st.sessions)
}

// Stats counts live sessions by state.
func (st *Store) Stats() map[model.State]int {
	st.mu.Lock()
	defer st.mu.Unlock()
	out := make(map[model.State]int)
	for _, s := range st.sessions {
		out[s.State]++
	}
	return out
}
