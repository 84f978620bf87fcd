package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"

	"multicamera/internal/camera"
	"multicamera/internal/gles"
	"multicamera/internal/log"
	"multicamera/internal/render"
)

var (
	// ErrNotStarted は Start 前の操作
	ErrNotStarted = errors.New("pipeline: 開始されていません")

	// ErrAlreadyStarted は Start の二重呼び出し
	ErrAlreadyStarted = errors.New("pipeline: 既に開始されています")

	// ErrUnknownRole は登録されていない役割
	ErrUnknownRole = errors.New("pipeline: カメラが登録されていません")

	// ErrZoomOutOfRange はカメラの対応範囲外のズーム倍率
	ErrZoomOutOfRange = errors.New("pipeline: ズーム倍率が範囲外です")
)

// State はパイプライン全体の状態
type State string

const (
	StateIdle     State = "idle"
	StateStarting State = "starting"
	StateRunning  State = "running"
	StateStopped  State = "stopped"
	StateFailed   State = "failed"
)

// Config はパイプラインの設定
type Config struct {
	Width     int  // カメラのバッファ幅
	Height    int  // カメラのバッファ高さ
	Landscape bool // 横向きなら 90 度回転

	// MainFacing はメイン映像に使うカメラの向き。もう一方がサブになる
	MainFacing camera.Facing

	WaitMode         WaitMode
	OpenTimeout      time.Duration
	ConfigureTimeout time.Duration

	Logger *slog.Logger
}

// OutputSize は描画先のサイズを返す。縦向きでは幅と高さを入れ替える
func (c Config) OutputSize() (width, height int) {
	if c.Landscape {
		return c.Width, c.Height
	}
	return c.Height, c.Width
}

// Outputs は描画先の表示先
type Outputs struct {
	Preview gles.NativeWindow
	Capture gles.NativeWindow
}

// Status はパイプラインの状態のスナップショット
type Status struct {
	ID        string        `json:"id"`
	State     State         `json:"state"`
	StartedAt time.Time     `json:"started_at,omitempty"`
	Rotation  float32       `json:"rotation"`
	Width     int           `json:"width"`
	Height    int           `json:"height"`
	Cameras   []camera.Info `json:"cameras"`
	Stats     Stats         `json:"stats"`
	Error     string        `json:"error,omitempty"`
}

// Pipeline はカメラセッション、描画先、合成ループを所有する
//
// 描画に関わる処理（サーフェスの作成、合成、解放）はすべて1つのゴルーチンで行い、
// そのゴルーチンは OS スレッドに固定する。
// 終了時は (1) ループの終了 (2) 映像ソースの解放 (3) セッションのクローズ
// (4) GPU リソースの解放 の順に片付ける。
type Pipeline struct {
	id       string
	platform camera.Platform
	display  gles.Display
	outputs  Outputs
	cfg      Config
	logger   *slog.Logger

	registry *camera.Registry
	driver   *Driver

	mu        sync.RWMutex
	state     State
	startedAt time.Time
	err       error
	cancel    context.CancelFunc
	done      chan struct{}
}

// New は新しい Pipeline を作成する
func New(platform camera.Platform, display gles.Display, outputs Outputs, cfg Config) *Pipeline {
	logger := cfg.Logger
	if logger == nil {
		logger = log.L()
	}
	id := uuid.New().String()

	return &Pipeline{
		id:       id,
		platform: platform,
		display:  display,
		outputs:  outputs,
		cfg:      cfg,
		logger:   logger.With("component", "pipeline", "pipeline_id", id),
		registry: camera.NewRegistry(),
		state:    StateIdle,
		done:     make(chan struct{}),
	}
}

// ID はパイプラインの識別子を返す
func (p *Pipeline) ID() string {
	return p.id
}

// Start はレンダーゴルーチンを起動し、描画先とカメラの準備が終わるまで待つ
// 描画先の準備に失敗した場合はエラーを返す。カメラの失敗はログに残して続行する
// ctx がキャンセルされるとパイプラインも停止する
func (p *Pipeline) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.state != StateIdle {
		p.mu.Unlock()
		return ErrAlreadyStarted
	}
	runCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.state = StateStarting
	p.startedAt = time.Now()
	p.mu.Unlock()

	ready := make(chan error, 1)
	go p.run(runCtx, ready)

	select {
	case err := <-ready:
		return err
	case <-ctx.Done():
		cancel()
		<-p.done
		return ctx.Err()
	}
}

// run はレンダーゴルーチンの本体
func (p *Pipeline) run(ctx context.Context, ready chan<- error) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	defer close(p.done)

	targets, err := p.setupTargets()
	if err != nil {
		p.logger.Error("描画先の準備に失敗", "error", err)
		p.releaseTargets(targets)
		p.finish(err)
		ready <- err
		return
	}

	var driverTargets []Target
	for _, t := range targets {
		driverTargets = append(driverTargets, t)
	}
	driver := NewDriver(driverTargets, DriverConfig{
		WaitMode: p.cfg.WaitMode,
		Logger:   p.logger,
	})
	p.mu.Lock()
	p.driver = driver
	p.mu.Unlock()

	for _, t := range targets {
		main, sub := t.Sources()
		main.SetOnFrameAvailable(driver.FrameAvailable)
		sub.SetOnFrameAvailable(driver.FrameAvailable)
	}

	if err := p.setupSessions(targets); err != nil {
		p.logger.Error("カメラの選択に失敗", "error", err)
	}
	if err := p.registry.OpenAndStart(ctx); err != nil {
		p.logger.Error("一部のカメラを開始できませんでした", "error", err)
	}

	p.setState(StateRunning)
	ready <- nil

	runErr := driver.Run(ctx)

	// ループを抜けてから片付ける
	for _, t := range targets {
		t.ReleaseSources()
	}
	p.registry.CloseAll()
	p.releaseTargets(targets)

	p.finish(runErr)
}

// setupTargets はプレビューとキャプチャの描画先を作成する
func (p *Pipeline) setupTargets() ([]*render.Target, error) {
	width, height := p.cfg.OutputSize()
	rotation := render.Rotation(p.cfg.Landscape)

	outputs := []struct {
		name   string
		window gles.NativeWindow
	}{
		{"preview", p.outputs.Preview},
		{"capture", p.outputs.Capture},
	}

	var targets []*render.Target
	for _, o := range outputs {
		surface, err := p.display.CreateWindowSurface(o.window, width, height)
		if err != nil {
			return targets, fmt.Errorf("%s のサーフェス作成に失敗: %w", o.name, err)
		}
		target := render.NewTarget(o.name, surface, rotation)
		targets = append(targets, target)
		if err := target.Setup(p.cfg.Width, p.cfg.Height); err != nil {
			return targets, err
		}
	}
	return targets, nil
}

// setupSessions はメイン・サブのカメラセッションを作成して登録する
// メインのカメラは両方の描画先のメイン映像へ、サブのカメラはサブ映像へ書き込む
func (p *Pipeline) setupSessions(targets []*render.Target) error {
	back, front, err := camera.SelectBackFront(p.platform)
	if err != nil {
		return err
	}

	mainID, subID := back, front
	mainFacing, subFacing := camera.FacingBack, camera.FacingFront
	if p.cfg.MainFacing == camera.FacingFront {
		mainID, subID = front, back
		mainFacing, subFacing = subFacing, mainFacing
	}

	var mainTargets, subTargets []camera.Surface
	for _, t := range targets {
		main, sub := t.Sources()
		mainTargets = append(mainTargets, main)
		subTargets = append(subTargets, sub)
	}

	sessions := []camera.SessionConfig{
		{ID: mainID, Facing: mainFacing, Role: camera.RoleMain, Targets: mainTargets},
		{ID: subID, Facing: subFacing, Role: camera.RoleSub, Targets: subTargets},
	}
	for _, cfg := range sessions {
		cfg.OpenTimeout = p.cfg.OpenTimeout
		cfg.ConfigureTimeout = p.cfg.ConfigureTimeout
		cfg.Logger = p.logger
		if err := p.registry.Add(camera.NewSession(p.platform, cfg)); err != nil {
			return err
		}
	}
	return nil
}

func (p *Pipeline) releaseTargets(targets []*render.Target) {
	for _, t := range targets {
		if err := t.Release(); err != nil {
			p.logger.Warn("描画先の解放に失敗", "target", t.Name(), "error", err)
		}
	}
}

func (p *Pipeline) setState(state State) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.state = state
}

func (p *Pipeline) finish(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.err = err
	if err != nil {
		p.state = StateFailed
	} else {
		p.state = StateStopped
	}
	p.logger.Info("パイプラインを停止しました", "state", string(p.state))
}

// Close はパイプラインを停止し、すべてのリソースを解放するまで待つ
// 二回目以降や Start 前の呼び出しでは何もしない
func (p *Pipeline) Close() error {
	p.mu.Lock()
	cancel := p.cancel
	started := p.state != StateIdle
	p.mu.Unlock()

	if !started {
		return nil
	}
	cancel()
	<-p.done
	return p.Err()
}

// Done はパイプラインが停止すると閉じるチャンネルを返す
func (p *Pipeline) Done() <-chan struct{} {
	return p.done
}

// Err は停止の原因となったエラーを返す。正常停止や動作中は nil
func (p *Pipeline) Err() error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.err
}

// Zoom は指定した役割のカメラのズーム倍率を変更する
// カメラが報告する範囲外の倍率は ErrZoomOutOfRange になる
func (p *Pipeline) Zoom(role camera.Role, ratio float32) error {
	s, ok := p.registry.Get(role)
	if !ok {
		return fmt.Errorf("%s: %w", role, ErrUnknownRole)
	}
	r := s.ZoomRange()
	if !r.Available() || !r.Contains(ratio) {
		return fmt.Errorf("%v (範囲 %v-%v): %w", ratio, r.Min, r.Max, ErrZoomOutOfRange)
	}
	return s.Zoom(ratio)
}

// ZoomRange は指定した役割のカメラのズーム範囲を返す
func (p *Pipeline) ZoomRange(role camera.Role) (camera.ZoomRange, error) {
	s, ok := p.registry.Get(role)
	if !ok {
		return camera.ZoomRange{}, fmt.Errorf("%s: %w", role, ErrUnknownRole)
	}
	return s.ZoomRange(), nil
}

// Camera は指定した役割のカメラの状態を返す
func (p *Pipeline) Camera(role camera.Role) (camera.Info, error) {
	s, ok := p.registry.Get(role)
	if !ok {
		return camera.Info{}, fmt.Errorf("%s: %w", role, ErrUnknownRole)
	}
	return s.Info(), nil
}

// Cameras は全カメラの状態を返す
func (p *Pipeline) Cameras() []camera.Info {
	return p.registry.Infos()
}

// Status は現在の状態を返す
func (p *Pipeline) Status() Status {
	p.mu.RLock()
	state, startedAt, err, driver := p.state, p.startedAt, p.err, p.driver
	p.mu.RUnlock()

	width, height := p.cfg.OutputSize()
	status := Status{
		ID:        p.id,
		State:     state,
		StartedAt: startedAt,
		Rotation:  render.Rotation(p.cfg.Landscape),
		Width:     width,
		Height:    height,
		Cameras:   p.registry.Infos(),
	}
	if driver != nil {
		status.Stats = driver.Stats()
	}
	if err != nil {
		status.Error = err.Error()
	}
	return status
}
