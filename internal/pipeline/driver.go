package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"multicamera/internal/log"
)

// SourcesPerPass は1回の合成で描画する映像ソースの数（メインとサブ）
const SourcesPerPass = 2

// WaitMode は新しいフレームを待つ方法
type WaitMode string

const (
	// WaitSignal はフレーム到着の通知で起こされるまで眠る
	WaitSignal WaitMode = "signal"
	// WaitPoll はゴルーチンを譲りながらカウンタを見続ける
	WaitPoll WaitMode = "poll"
)

// ParseWaitMode は文字列から WaitMode を取得する
func ParseWaitMode(s string) (WaitMode, error) {
	switch WaitMode(s) {
	case WaitSignal, WaitPoll:
		return WaitMode(s), nil
	case "":
		return WaitSignal, nil
	default:
		return "", fmt.Errorf("無効な待機モード: %q", s)
	}
}

// ErrAlreadyRunning は Run の二重起動
var ErrAlreadyRunning = errors.New("pipeline: ドライバーは既に動作中です")

// Target は合成パスで訪れる描画先（render.Target）
type Target interface {
	Name() string
	MakeCurrent() error
	DrawFrame() error
	SwapBuffers() error
}

// Stats はドライバーの状態のスナップショット
type Stats struct {
	Available uint64    `json:"frames_available"`
	Consumed  uint64    `json:"frames_consumed"`
	Passes    uint64    `json:"passes"`
	Running   bool      `json:"running"`
	StartedAt time.Time `json:"started_at,omitempty"`
	LastPass  time.Time `json:"last_pass,omitempty"`
}

// DriverConfig はドライバーの設定
type DriverConfig struct {
	Step     int      // 1パスで消費するフレーム数。0 なら SourcesPerPass
	WaitMode WaitMode // 空なら WaitSignal
	Logger   *slog.Logger
}

// Driver はフレームの到着と合成ループを同期させる
//
// available は映像ソースの通知ごとに1増え、consumed は全描画先を1巡するごとに Step 増える。
// consumed <= available を保つため、差が Step 以上あるときだけ1パスを実行する。
// Run はレンダースレッド（コンテキストを持つゴルーチン）で呼び出す。
type Driver struct {
	targets []Target
	step    uint64
	mode    WaitMode
	logger  *slog.Logger

	available atomic.Uint64
	consumed  atomic.Uint64
	passes    atomic.Uint64
	running   atomic.Bool

	wake chan struct{}

	mu        sync.Mutex
	startedAt time.Time
	lastPass  time.Time
}

// NewDriver は描画先を固定した順序で訪れるドライバーを作成する
func NewDriver(targets []Target, cfg DriverConfig) *Driver {
	step := cfg.Step
	if step <= 0 {
		step = SourcesPerPass
	}
	mode := cfg.WaitMode
	if mode == "" {
		mode = WaitSignal
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.L()
	}

	return &Driver{
		targets: append([]Target(nil), targets...),
		step:    uint64(step),
		mode:    mode,
		logger:  logger.With("component", "driver"),
		wake:    make(chan struct{}, 1),
	}
}

// FrameAvailable は映像ソースに新しいフレームが届いたことを通知する
// 任意のゴルーチンから呼び出せる
func (d *Driver) FrameAvailable() {
	d.available.Add(1)
	select {
	case d.wake <- struct{}{}:
	default:
	}
}

// Run はキャンセルされるまで合成ループを回す
// キャンセル時は実行中のパスを終えてから nil を返す
// 描画先のエラーは回復できないので、その時点でエラーを返して終了する
func (d *Driver) Run(ctx context.Context) error {
	if !d.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer d.running.Store(false)

	d.mu.Lock()
	d.startedAt = time.Now()
	d.mu.Unlock()

	d.logger.Info("合成ループを開始", "targets", len(d.targets), "wait_mode", string(d.mode))
	defer d.logger.Info("合成ループを終了", "passes", d.passes.Load())

	for {
		if ctx.Err() != nil {
			return nil
		}

		if d.pending() {
			if err := d.pass(); err != nil {
				d.logger.Error("合成に失敗", "error", err)
				return err
			}
			continue
		}

		d.wait(ctx)
	}
}

// pending は未処理のフレームが1パス分以上あるかを返す
func (d *Driver) pending() bool {
	return d.available.Load()-d.consumed.Load() >= d.step
}

// pass は全描画先を固定順に訪れて合成と表示を行う
func (d *Driver) pass() error {
	for _, t := range d.targets {
		if err := t.MakeCurrent(); err != nil {
			return err
		}
		if err := t.DrawFrame(); err != nil {
			return err
		}
		if err := t.SwapBuffers(); err != nil {
			return err
		}
	}

	d.consumed.Add(d.step)
	d.passes.Add(1)

	d.mu.Lock()
	d.lastPass = time.Now()
	d.mu.Unlock()
	return nil
}

func (d *Driver) wait(ctx context.Context) {
	if d.mode == WaitPoll {
		runtime.Gosched()
		return
	}
	select {
	case <-ctx.Done():
	case <-d.wake:
	}
}

// Stats は現在の状態を返す
func (d *Driver) Stats() Stats {
	d.mu.Lock()
	startedAt, lastPass := d.startedAt, d.lastPass
	d.mu.Unlock()

	// consumed を先に読むと available との比較が崩れない
	consumed := d.consumed.Load()
	return Stats{
		Available: d.available.Load(),
		Consumed:  consumed,
		Passes:    d.passes.Load(),
		Running:   d.running.Load(),
		StartedAt: startedAt,
		LastPass:  lastPass,
	}
}
