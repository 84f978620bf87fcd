package camera

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"multicamera/internal/log"
)

const (
	// DefaultOpenTimeout はカメラのオープン待ちの既定値
	DefaultOpenTimeout = 5 * time.Second
	// DefaultConfigureTimeout はキャプチャセッション構成待ちの既定値
	DefaultConfigureTimeout = 5 * time.Second
)

// SessionConfig はセッションの設定
type SessionConfig struct {
	ID      string    // カメラID
	Facing  Facing    // レンズの向き
	Role    Role      // 合成時の役割
	Targets []Surface // 出力先（プレビューとキャプチャ）

	OpenTimeout      time.Duration // 0 なら DefaultOpenTimeout
	ConfigureTimeout time.Duration // 0 なら DefaultConfigureTimeout

	Logger *slog.Logger
}

// Session は1台のカメラのオープンからストリーミング、クローズまでを管理する
//
// 状態は Closed → Opening → Opened → Streaming → Closed と進む。
// プラットフォームからのコールバックは別のゴルーチンで届くので、結果はチャンネル経由で受け取る。
// Close は何度呼んでもよく、Open の完了前に呼んでもよい。
type Session struct {
	key      string
	id       string
	facing   Facing
	role     Role
	platform Platform
	targets  []Surface
	logger   *slog.Logger

	openTimeout      time.Duration
	configureTimeout time.Duration

	state        atomic.Int32
	disconnected atomic.Bool

	mu      sync.Mutex
	device  Device
	capture CaptureSession
	request CaptureRequest
	closed  bool
	done    chan struct{}
}

// NewSession は新しいセッションを作成する。カメラはまだ開かない
func NewSession(platform Platform, cfg SessionConfig) *Session {
	if cfg.OpenTimeout <= 0 {
		cfg.OpenTimeout = DefaultOpenTimeout
	}
	if cfg.ConfigureTimeout <= 0 {
		cfg.ConfigureTimeout = DefaultConfigureTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.L()
	}

	key := uuid.New().String()
	return &Session{
		key:              key,
		id:               cfg.ID,
		facing:           cfg.Facing,
		role:             cfg.Role,
		platform:         platform,
		targets:          cfg.Targets,
		openTimeout:      cfg.OpenTimeout,
		configureTimeout: cfg.ConfigureTimeout,
		logger:           logger.With("component", "camera", "camera_id", cfg.ID, "role", string(cfg.Role)),
		done:             make(chan struct{}),
	}
}

// Key はセッションの一意識別子を返す
func (s *Session) Key() string { return s.key }

// ID はカメラIDを返す
func (s *Session) ID() string { return s.id }

// Role は合成時の役割を返す
func (s *Session) Role() Role { return s.role }

// Facing はレンズの向きを返す
func (s *Session) Facing() Facing { return s.facing }

// State は現在の状態を返す
func (s *Session) State() State {
	return State(s.state.Load())
}

// Disconnected はストリーミング中に切断が通知されたかを返す
func (s *Session) Disconnected() bool {
	return s.disconnected.Load()
}

// ZoomRatio は現在のリクエストのズーム倍率を返す。Start 前は 0
func (s *Session) ZoomRatio() float32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.request.ZoomRatio
}

// Open はカメラを開き、結果が届くまで待つ
// 切断やエラーが通知された場合はエラーを返し、再試行はしない
func (s *Session) Open(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	if s.State() != StateClosed {
		s.mu.Unlock()
		return fmt.Errorf("Open: %w: %s", ErrInvalidState, s.State())
	}
	s.state.Store(int32(StateOpening))
	s.mu.Unlock()

	cb := newDeviceCallback(s)
	if err := s.platform.OpenCamera(s.id, cb); err != nil {
		s.state.CompareAndSwap(int32(StateOpening), int32(StateClosed))
		s.logger.Error("カメラのオープンに失敗", "error", err)
		return fmt.Errorf("カメラ %s のオープンに失敗: %w", s.id, err)
	}

	timer := time.NewTimer(s.openTimeout)
	defer timer.Stop()

	var res openResult
	select {
	case res = <-cb.result:
	case <-timer.C:
		res.err = ErrOpenTimeout
		cb.abandon()
	case <-ctx.Done():
		res.err = ctx.Err()
		cb.abandon()
	case <-s.done:
		res.err = ErrSessionClosed
		cb.abandon()
	}

	if res.err != nil {
		// 切断・エラー時に渡されたデバイスは保持しない
		if res.device != nil {
			res.device.Close()
		}
		s.state.CompareAndSwap(int32(StateOpening), int32(StateClosed))
		s.logger.Error("カメラを開けませんでした", "error", res.err)
		return fmt.Errorf("カメラ %s のオープンに失敗: %w", s.id, res.err)
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		res.device.Close()
		return ErrSessionClosed
	}
	s.device = res.device
	s.state.Store(int32(StateOpened))
	s.mu.Unlock()

	s.logger.Info("カメラを開きました")
	return nil
}

// Start はキャプチャセッションを構成し、繰り返しリクエストを発行する
// リクエストはプレビューとキャプチャの両方を出力先とし、ズーム倍率 1.0 で作成する
// 構成に失敗した場合は Opened のままエラーを返す
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	if s.State() != StateOpened || s.device == nil {
		state := s.State()
		s.mu.Unlock()
		return fmt.Errorf("Start: %w: %s", ErrInvalidState, state)
	}
	device := s.device
	s.request = CaptureRequest{
		Targets:   s.targets,
		ZoomRatio: 1.0,
	}
	s.mu.Unlock()

	cb := newSessionCallback()
	if err := device.CreateCaptureSession(s.targets, cb); err != nil {
		s.logger.Error("キャプチャセッションの作成に失敗", "error", err)
		return fmt.Errorf("カメラ %s のキャプチャセッション作成に失敗: %w", s.id, err)
	}

	timer := time.NewTimer(s.configureTimeout)
	defer timer.Stop()

	var res configureResult
	select {
	case res = <-cb.result:
	case <-timer.C:
		res.err = ErrConfigureTimeout
		cb.abandon()
	case <-ctx.Done():
		res.err = ctx.Err()
		cb.abandon()
	case <-s.done:
		res.err = ErrSessionClosed
		cb.abandon()
	}

	if res.err != nil {
		if res.session != nil {
			res.session.Close()
		}
		s.logger.Error("キャプチャセッションを構成できませんでした", "error", res.err)
		return fmt.Errorf("カメラ %s: %w", s.id, res.err)
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		res.session.Close()
		return ErrSessionClosed
	}
	s.capture = res.session
	if err := s.capture.SetRepeatingRequest(s.request); err != nil {
		s.mu.Unlock()
		s.logger.Error("繰り返しリクエストの発行に失敗", "error", err)
		return fmt.Errorf("カメラ %s の繰り返しリクエスト発行に失敗: %w", s.id, err)
	}
	s.state.Store(int32(StateStreaming))
	s.mu.Unlock()

	s.logger.Info("ストリーミングを開始しました")
	return nil
}

// Zoom はズーム倍率を変更して繰り返しリクエストを発行し直す
// Streaming 以外では何もしない。範囲の確認は呼び出し側で行う
func (s *Session) Zoom(ratio float32) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed || s.State() != StateStreaming || s.capture == nil {
		return nil
	}

	s.request.ZoomRatio = ratio
	if err := s.capture.SetRepeatingRequest(s.request); err != nil {
		return fmt.Errorf("カメラ %s のズーム変更に失敗: %w", s.id, err)
	}
	s.logger.Debug("ズーム倍率を変更", "ratio", ratio)
	return nil
}

// ZoomRange はカメラが対応するズーム倍率の範囲を返す
// プラットフォームが報告しない場合は [0,0]
func (s *Session) ZoomRange() ZoomRange {
	ch, err := s.platform.Characteristics(s.id)
	if err != nil || ch.ZoomRange == nil {
		return ZoomRange{}
	}
	return *ch.ZoomRange
}

// Close はキャプチャセッションとデバイスを閉じる
// どの状態から呼んでもよく、二回目以降は何もしない
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	close(s.done)
	capture, device := s.capture, s.device
	s.capture, s.device = nil, nil
	s.state.Store(int32(StateClosed))
	s.mu.Unlock()

	if capture != nil {
		capture.Close()
	}
	if device != nil {
		device.Close()
	}
	s.logger.Info("カメラを閉じました")
}

// Info は状態のスナップショットを返す
func (s *Session) Info() Info {
	return Info{
		Key:          s.key,
		ID:           s.id,
		Role:         s.role,
		Facing:       s.facing.String(),
		State:        s.State().String(),
		ZoomRatio:    s.ZoomRatio(),
		ZoomRange:    s.ZoomRange(),
		Disconnected: s.Disconnected(),
	}
}

// handleDisconnected はストリーミング中の切断を記録する
// セッションは閉じず、映像が止まるだけになる
func (s *Session) handleDisconnected(err error) {
	s.disconnected.Store(true)
	s.logger.Warn("カメラが切断されました", "error", err)
}

type openResult struct {
	device Device
	err    error
}

// deviceCallback は1回分の Open の結果を受け取る
// 待ち側が諦めた後に届いたデバイスは閉じる
type deviceCallback struct {
	session *Session

	mu        sync.Mutex
	resolved  bool
	abandoned bool
	result    chan openResult
}

func newDeviceCallback(s *Session) *deviceCallback {
	return &deviceCallback{
		session: s,
		result:  make(chan openResult, 1),
	}
}

func (c *deviceCallback) OnOpened(device Device) {
	c.resolve(openResult{device: device})
}

func (c *deviceCallback) OnDisconnected(device Device) {
	if !c.resolve(openResult{device: device, err: ErrDisconnected}) {
		c.session.handleDisconnected(ErrDisconnected)
	}
}

func (c *deviceCallback) OnError(device Device, code int) {
	err := &DeviceError{ID: c.session.id, Code: code}
	if !c.resolve(openResult{device: device, err: err}) {
		c.session.handleDisconnected(err)
	}
}

// resolve は最初の結果だけを待ち側へ渡す
// すでに結果が出ていれば false を返す（ストリーミング中の通知）
func (c *deviceCallback) resolve(res openResult) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.abandoned {
		if res.device != nil {
			res.device.Close()
		}
		return true
	}
	if c.resolved {
		return false
	}
	c.resolved = true
	c.result <- res
	return true
}

// abandon は待ち側が諦めたことを記録し、未受信の結果を片付ける
func (c *deviceCallback) abandon() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.abandoned = true
	select {
	case res := <-c.result:
		if res.device != nil {
			res.device.Close()
		}
	default:
	}
}

type configureResult struct {
	session CaptureSession
	err     error
}

// sessionCallback は1回分のキャプチャセッション構成の結果を受け取る
type sessionCallback struct {
	mu        sync.Mutex
	resolved  bool
	abandoned bool
	result    chan configureResult
}

func newSessionCallback() *sessionCallback {
	return &sessionCallback{result: make(chan configureResult, 1)}
}

func (c *sessionCallback) OnConfigured(session CaptureSession) {
	c.resolve(configureResult{session: session})
}

func (c *sessionCallback) OnConfigureFailed(session CaptureSession) {
	c.resolve(configureResult{session: session, err: ErrConfigureFailed})
}

func (c *sessionCallback) resolve(res configureResult) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.abandoned {
		if res.session != nil {
			res.session.Close()
		}
		return
	}
	if c.resolved {
		return
	}
	c.resolved = true
	c.result <- res
}

func (c *sessionCallback) abandon() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.abandoned = true
	select {
	case res := <-c.result:
		if res.session != nil {
			res.session.Close()
		}
	default:
	}
}
