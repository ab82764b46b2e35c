package rendercore

import (
	"errors"
	"fmt"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
)

// deviceHandle is the device a session renders with. owned is false when
// the device came from a host DeviceProvider.
type deviceHandle struct {
	device   hal.Device
	queue    hal.Queue
	instance hal.Instance
	adapter  hal.Adapter
	info     gputypes.AdapterInfo
	limits   gputypes.Limits
	format   gputypes.TextureFormat
	owned    bool
}

var errNoAdapters = errors.New("no adapters found")

// acquireDevice opens a device from the host provider or walks the
// fallback chain.
func acquireDevice(o *sessionOptions) (*deviceHandle, error) {
	if o.provider != nil {
		return deviceFromProvider(o.provider)
	}

	var attempts []ContextAttempt
	for _, b := range o.backends {
		h, err := openBackend(b)
		if err == nil {
			Logger().Info("rendercore: device selected",
				"backend", b, "adapter", h.info.Name, "type", h.info.DeviceType)
			return h, nil
		}
		Logger().Warn("rendercore: backend unavailable, trying next", "backend", b, "err", err)
		attempts = append(attempts, ContextAttempt{Backend: b, Err: err})
	}
	return nil, &UnsupportedContextError{Attempts: attempts}
}

func openBackend(b gputypes.Backend) (*deviceHandle, error) {
	backend, ok := hal.GetBackend(b)
	if !ok {
		return nil, fmt.Errorf("%s backend not registered", b)
	}
	instance, err := backend.CreateInstance(&hal.InstanceDescriptor{Flags: 0})
	if err != nil {
		return nil, fmt.Errorf("create instance: %w", err)
	}
	adapters := instance.EnumerateAdapters(nil)
	if len(adapters) == 0 {
		instance.Destroy()
		return nil, errNoAdapters
	}
	selected := pickAdapter(adapters)

	limits := gputypes.DefaultLimits()
	openDev, err := selected.Adapter.Open(gputypes.Features(0), limits)
	if err != nil {
		instance.Destroy()
		return nil, fmt.Errorf("open device on %q: %w", selected.Info.Name, err)
	}
	return &deviceHandle{
		device:   openDev.Device,
		queue:    openDev.Queue,
		instance: instance,
		adapter:  selected.Adapter,
		info:     selected.Info,
		limits:   limits,
		owned:    true,
	}, nil
}

// pickAdapter prefers discrete GPUs, then integrated, then anything that
// is not a CPU rasterizer.
func pickAdapter(adapters []hal.ExposedAdapter) *hal.ExposedAdapter {
	rank := func(t gputypes.DeviceType) int {
		switch t {
		case gputypes.DeviceTypeDiscreteGPU:
			return 0
		case gputypes.DeviceTypeIntegratedGPU:
			return 1
		case gputypes.DeviceTypeCPU:
			return 3
		default:
			return 2
		}
	}
	best := &adapters[0]
	for i := range adapters[1:] {
		a := &adapters[i+1]
		if rank(a.Info.DeviceType) < rank(best.Info.DeviceType) {
			best = a
		}
	}
	return best
}

// deviceFromProvider takes the HAL device and queue from a host provider.
// Providers either expose HalDevice/HalQueue or return HAL types directly
// from Device and Queue.
func deviceFromProvider(p gpucontext.DeviceProvider) (*deviceHandle, error) {
	type halProvider interface {
		HalDevice() any
		HalQueue() any
	}
	var dev, queue any
	if hp, ok := p.(halProvider); ok {
		dev, queue = hp.HalDevice(), hp.HalQueue()
	} else {
		dev, queue = p.Device(), p.Queue()
	}
	device, ok := dev.(hal.Device)
	if !ok || device == nil {
		return nil, &UnsupportedContextError{Attempts: []ContextAttempt{{
			Err: fmt.Errorf("provider device %T is not a hal.Device", dev),
		}}}
	}
	q, ok := queue.(hal.Queue)
	if !ok || q == nil {
		return nil, &UnsupportedContextError{Attempts: []ContextAttempt{{
			Err: fmt.Errorf("provider queue %T is not a hal.Queue", queue),
		}}}
	}

	info := p.AdapterInfo()
	h := &deviceHandle{
		device: device,
		queue:  q,
		info:   gputypes.AdapterInfo{Name: info.Name, DeviceType: deviceType(info.Type)},
		limits: gputypes.DefaultLimits(),
		format: p.SurfaceFormat(),
	}
	if a, ok := p.Adapter().(hal.Adapter); ok {
		h.adapter = a
	}
	Logger().Info("rendercore: using host device", "adapter", info.Name, "type", info.Type)
	return h, nil
}

func deviceType(t gpucontext.AdapterType) gputypes.DeviceType {
	switch t {
	case gpucontext.AdapterTypeDiscrete:
		return gputypes.DeviceTypeDiscreteGPU
	case gpucontext.AdapterTypeIntegrated:
		return gputypes.DeviceTypeIntegratedGPU
	case gpucontext.AdapterTypeSoftware:
		return gputypes.DeviceTypeCPU
	default:
		return gputypes.DeviceTypeOther
	}
}

func adapterType(t gputypes.DeviceType) gpucontext.AdapterType {
	switch t {
	case gputypes.DeviceTypeDiscreteGPU:
		return gpucontext.AdapterTypeDiscrete
	case gputypes.DeviceTypeIntegratedGPU:
		return gpucontext.AdapterTypeIntegrated
	case gputypes.DeviceTypeCPU:
		return gpucontext.AdapterTypeSoftware
	default:
		return gpucontext.AdapterTypeUnknown
	}
}

// close waits for outstanding work and destroys the device if this
// session opened it.
func (h *deviceHandle) close() {
	if h == nil || h.device == nil {
		return
	}
	if err := h.device.WaitIdle(); err != nil {
		Logger().Warn("rendercore: wait idle on release", "err", err)
	}
	if h.owned {
		h.device.Destroy()
		if h.instance != nil {
			h.instance.Destroy()
		}
	}
	h.device = nil
	h.queue = nil
}
