package camera

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// Registry は役割ごとのセッションを管理する
type Registry struct {
	mu       sync.RWMutex
	sessions map[Role]*Session
	order    []Role
}

// NewRegistry は新しい Registry を作成する
func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[Role]*Session),
	}
}

// Add はセッションを登録する。同じ役割は一つまで
func (r *Registry) Add(s *Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.sessions[s.Role()]; exists {
		return fmt.Errorf("役割 %s のセッションは既に登録されています", s.Role())
	}
	r.sessions[s.Role()] = s
	r.order = append(r.order, s.Role())
	return nil
}

// Get は役割に対応するセッションを返す
func (r *Registry) Get(role Role) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, exists := r.sessions[role]
	return s, exists
}

// Sessions は登録順のセッション一覧を返す
func (r *Registry) Sessions() []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sessions := make([]*Session, 0, len(r.order))
	for _, role := range r.order {
		sessions = append(sessions, r.sessions[role])
	}
	return sessions
}

// Infos は全セッションの状態を返す
func (r *Registry) Infos() []Info {
	sessions := r.Sessions()
	infos := make([]Info, 0, len(sessions))
	for _, s := range sessions {
		infos = append(infos, s.Info())
	}
	return infos
}

// OpenAndStart は登録順に各セッションを開いてストリーミングを開始する
// 一台が失敗しても残りは続ける。失敗はまとめて返す
func (r *Registry) OpenAndStart(ctx context.Context) error {
	var errs []error
	for _, s := range r.Sessions() {
		if err := s.Open(ctx); err != nil {
			errs = append(errs, err)
			continue
		}
		if err := s.Start(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// CloseAll は全セッションを閉じる
func (r *Registry) CloseAll() {
	for _, s := range r.Sessions() {
		s.Close()
	}
}
