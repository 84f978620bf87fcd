package camera

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"sync"
	"time"
)

// VirtualCamera は VirtualPlatform が提供するカメラ1台分の定義
type VirtualCamera struct {
	ID        string
	Facing    Facing
	ZoomRange *ZoomRange // nil ならズーム範囲を報告しない
	Color     color.RGBA // テストパターンの地の色
}

// DefaultVirtualCameras は背面・前面の2台構成を返す
func DefaultVirtualCameras() []VirtualCamera {
	return []VirtualCamera{
		{
			ID:        "0",
			Facing:    FacingBack,
			ZoomRange: &ZoomRange{Min: 0.67, Max: 20.0},
			Color:     color.RGBA{R: 32, G: 96, B: 160, A: 255},
		},
		{
			ID:     "1",
			Facing: FacingFront,
			Color:  color.RGBA{R: 176, G: 96, B: 32, A: 255},
		},
	}
}

// VirtualPlatform はテストパターンを生成するカメラサービス
//
// 実機のカメラが無い環境（サーバー、CI）で使う。コールバックはすべて
// 単一のワーカーゴルーチンから呼び出され、フレームはセッションごとの
// ゴルーチンから出力先へ書き込まれる。失敗の注入はテストで使う。
type VirtualPlatform struct {
	cameras  map[string]VirtualCamera
	interval time.Duration

	mu      sync.Mutex
	devices map[*virtualDevice]struct{}

	// テスト制御用
	openErrors     map[string]int  // OnError で通知するエラーコード
	disconnectOpen map[string]bool // オープン時に切断を通知する
	silent         map[string]bool // オープンに応答しない
	failConfigure  map[string]bool // セッション構成に失敗する
	delay          time.Duration   // コールバック前の待ち時間

	work   chan func()
	stopCh chan struct{}
	wg     sync.WaitGroup
	once   sync.Once
}

// NewVirtualPlatform は新しい VirtualPlatform を作成し、ワーカーを開始する
func NewVirtualPlatform(fps int, cameras ...VirtualCamera) *VirtualPlatform {
	if fps <= 0 {
		fps = 30
	}
	if len(cameras) == 0 {
		cameras = DefaultVirtualCameras()
	}

	p := &VirtualPlatform{
		cameras:        make(map[string]VirtualCamera),
		interval:       time.Second / time.Duration(fps),
		devices:        make(map[*virtualDevice]struct{}),
		openErrors:     make(map[string]int),
		disconnectOpen: make(map[string]bool),
		silent:         make(map[string]bool),
		failConfigure:  make(map[string]bool),
		work:           make(chan func(), 16),
		stopCh:         make(chan struct{}),
	}
	for _, c := range cameras {
		p.cameras[c.ID] = c
	}

	p.wg.Add(1)
	go p.worker()
	return p
}

// Stop はワーカーを止め、開いているデバイスをすべて閉じる
func (p *VirtualPlatform) Stop() {
	p.once.Do(func() {
		close(p.stopCh)
		p.wg.Wait()

		p.mu.Lock()
		devices := make([]*virtualDevice, 0, len(p.devices))
		for d := range p.devices {
			devices = append(devices, d)
		}
		p.mu.Unlock()

		for _, d := range devices {
			d.Close()
		}
	})
}

// CameraIDs は利用できるカメラIDの一覧を返す
func (p *VirtualPlatform) CameraIDs() ([]string, error) {
	ids := make([]string, 0, len(p.cameras))
	for id := range p.cameras {
		ids = append(ids, id)
	}
	return ids, nil
}

// Characteristics はカメラの特性を返す
func (p *VirtualPlatform) Characteristics(id string) (Characteristics, error) {
	c, ok := p.cameras[id]
	if !ok {
		return Characteristics{}, fmt.Errorf("%s: %w", id, ErrUnknownCamera)
	}
	ch := Characteristics{Facing: c.Facing}
	if c.ZoomRange != nil {
		r := *c.ZoomRange
		ch.ZoomRange = &r
	}
	return ch, nil
}

// OpenCamera はカメラを非同期に開く
func (p *VirtualPlatform) OpenCamera(id string, callback DeviceStateCallback) error {
	c, ok := p.cameras[id]
	if !ok {
		return fmt.Errorf("%s: %w", id, ErrUnknownCamera)
	}

	p.mu.Lock()
	code, fail := p.openErrors[id]
	disconnect := p.disconnectOpen[id]
	silent := p.silent[id]
	p.mu.Unlock()

	if silent {
		return nil
	}

	device := &virtualDevice{
		platform: p,
		camera:   c,
		callback: callback,
		sessions: make(map[*virtualSession]struct{}),
	}
	p.mu.Lock()
	p.devices[device] = struct{}{}
	p.mu.Unlock()

	return p.post(func() {
		switch {
		case fail:
			callback.OnError(device, code)
		case disconnect:
			callback.OnDisconnected(device)
		default:
			callback.OnOpened(device)
		}
	})
}

// Disconnect はストリーミング中のカメラに切断を通知する
func (p *VirtualPlatform) Disconnect(id string) {
	for _, d := range p.openDevices(id) {
		d.stopSessions()
		cb := d.callback
		dev := d
		_ = p.post(func() { cb.OnDisconnected(dev) })
	}
}

// OpenDevices は閉じられていないデバイスの数を返す
func (p *VirtualPlatform) OpenDevices() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.devices)
}

// SetOpenError はオープン時に OnError を通知するよう設定する
func (p *VirtualPlatform) SetOpenError(id string, code int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.openErrors[id] = code
}

// SetDisconnectOnOpen はオープン時に切断を通知するよう設定する
func (p *VirtualPlatform) SetDisconnectOnOpen(id string, disconnect bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.disconnectOpen[id] = disconnect
}

// SetSilent はオープンに応答しないよう設定する
func (p *VirtualPlatform) SetSilent(id string, silent bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.silent[id] = silent
}

// SetFailConfigure はキャプチャセッションの構成に失敗するよう設定する
func (p *VirtualPlatform) SetFailConfigure(id string, fail bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failConfigure[id] = fail
}

// SetCallbackDelay はコールバック前に待つ時間を設定する
func (p *VirtualPlatform) SetCallbackDelay(d time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.delay = d
}

func (p *VirtualPlatform) openDevices(id string) []*virtualDevice {
	p.mu.Lock()
	defer p.mu.Unlock()
	var devices []*virtualDevice
	for d := range p.devices {
		if d.camera.ID == id {
			devices = append(devices, d)
		}
	}
	return devices
}

func (p *VirtualPlatform) removeDevice(d *virtualDevice) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.devices, d)
}

// post はワーカーで実行する処理を積む
func (p *VirtualPlatform) post(fn func()) error {
	select {
	case <-p.stopCh:
		return fmt.Errorf("カメラサービスは停止しています")
	default:
	}
	select {
	case p.work <- fn:
		return nil
	case <-p.stopCh:
		return fmt.Errorf("カメラサービスは停止しています")
	}
}

func (p *VirtualPlatform) worker() {
	defer p.wg.Done()
	for {
		select {
		case <-p.stopCh:
			return
		case fn := <-p.work:
			p.mu.Lock()
			delay := p.delay
			p.mu.Unlock()
			if delay > 0 {
				select {
				case <-time.After(delay):
				case <-p.stopCh:
					return
				}
			}
			fn()
		}
	}
}

// virtualDevice は VirtualPlatform が開いたデバイス
type virtualDevice struct {
	platform *VirtualPlatform
	camera   VirtualCamera
	callback DeviceStateCallback

	mu       sync.Mutex
	closed   bool
	sessions map[*virtualSession]struct{}
}

func (d *virtualDevice) ID() string {
	return d.camera.ID
}

func (d *virtualDevice) CreateCaptureSession(targets []Surface, callback SessionStateCallback) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return ErrDeviceClosed
	}
	s := &virtualSession{
		device:  d,
		targets: targets,
		stopCh:  make(chan struct{}),
	}
	d.sessions[s] = struct{}{}
	d.mu.Unlock()

	d.platform.mu.Lock()
	fail := d.platform.failConfigure[d.camera.ID]
	d.platform.mu.Unlock()

	return d.platform.post(func() {
		if fail {
			callback.OnConfigureFailed(s)
			return
		}
		callback.OnConfigured(s)
	})
}

func (d *virtualDevice) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	d.mu.Unlock()

	d.stopSessions()
	d.platform.removeDevice(d)
}

func (d *virtualDevice) stopSessions() {
	d.mu.Lock()
	sessions := make([]*virtualSession, 0, len(d.sessions))
	for s := range d.sessions {
		sessions = append(sessions, s)
	}
	d.mu.Unlock()

	for _, s := range sessions {
		s.Close()
	}
}

// virtualSession はテストパターンを出力先へ書き込むキャプチャセッション
type virtualSession struct {
	device  *virtualDevice
	targets []Surface

	mu        sync.Mutex
	request   CaptureRequest
	streaming bool
	closed    bool

	stopCh chan struct{}
	wg     sync.WaitGroup
}

func (s *virtualSession) SetRepeatingRequest(request CaptureRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrDeviceClosed
	}
	s.request = request
	if !s.streaming {
		s.streaming = true
		s.wg.Add(1)
		go s.stream()
	}
	return nil
}

func (s *virtualSession) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	close(s.stopCh)
	s.mu.Unlock()

	s.wg.Wait()

	s.device.mu.Lock()
	delete(s.device.sessions, s)
	s.device.mu.Unlock()
}

// stream は一定間隔でフレームを生成して出力先へ書き込む
func (s *virtualSession) stream() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.device.platform.interval)
	defer ticker.Stop()

	var seq int
	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.mu.Lock()
			request := s.request
			s.mu.Unlock()

			frames := make(map[image.Point]image.Image)
			for _, target := range request.Targets {
				w, h := target.Size()
				size := image.Pt(w, h)
				img, ok := frames[size]
				if !ok {
					img = TestPattern(w, h, s.device.camera.Color, request.ZoomRatio, seq)
					frames[size] = img
				}
				target.QueueFrame(img, identity)
			}
			seq++
		}
	}
}

var identity = [16]float32{
	1, 0, 0, 0,
	0, 1, 0, 0,
	0, 0, 1, 0,
	0, 0, 0, 1,
}

// TestPattern はテストパターンの画像を生成する
// 中央の四角はズーム倍率に応じて大きくなり、縦の帯はフレームごとに移動する
func TestPattern(width, height int, base color.RGBA, zoom float32, seq int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(img, img.Bounds(), image.NewUniform(base), image.Point{}, draw.Src)
	if width == 0 || height == 0 {
		return img
	}

	if zoom <= 0 {
		zoom = 1
	}
	side := int(float32(min(width, height)) / 4 * zoom)
	side = min(side, width, height)
	cx, cy := width/2, height/2
	square := image.Rect(cx-side/2, cy-side/2, cx+side/2, cy+side/2)
	draw.Draw(img, square, image.NewUniform(color.RGBA{R: 240, G: 240, B: 240, A: 255}), image.Point{}, draw.Src)

	barWidth := max(1, width/32)
	x := (seq * barWidth) % width
	bar := image.Rect(x, 0, x+barWidth, height)
	draw.Draw(img, bar, image.NewUniform(color.RGBA{A: 255}), image.Point{}, draw.Src)
	return img
}
