package device

import "errors"

var ErrSizeMismatch = errors.New("device: vector size mismatch")

// Library version strings reported by the properties snapshot.
const (
	BlasVersion   = "simblas 1.4.0"
	DnnVersion    = "simdnn 0.9.2"
	DriverVersion = "simdrv 525.1"
)

// BlasHandle issues linear-algebra work through its owning stream. Work from
// one handle executes in program order relative to everything else submitted
// through the same stream.
type BlasHandle struct {
	stream *Stream
}

func NewBlasHandle(stream *Stream) *BlasHandle {
	return &BlasHandle{stream: stream}
}

func (h *BlasHandle) Stream() *Stream { return h.stream }

// Axpy queues y += alpha*x. The operation is asynchronous; callers observe
// the result after a stream synchronize.
func (h *BlasHandle) Axpy(alpha float32, x, y []float32) error {
	if len(x) != len(y) {
		return ErrSizeMismatch
	}
	return h.stream.Submit(func() {
		for i := range y {
			y[i] += alpha * x[i]
		}
	})
}

// Scal queues x *= alpha.
func (h *BlasHandle) Scal(alpha float32, x []float32) error {
	return h.stream.Submit(func() {
		for i := range x {
			x[i] *= alpha
		}
	})
}

// Dot computes the inner product of x and y. It synchronizes on the owning
// stream, so all previously queued work on the stream is visible.
func (h *BlasHandle) Dot(x, y []float32) (float32, error) {
	if len(x) != len(y) {
		return 0, ErrSizeMismatch
	}
	var out float32
	done := make(chan struct{})
	err := h.stream.Submit(func() {
		defer close(done)
		for i := range x {
			out += x[i] * y[i]
		}
	})
	if err != nil {
		return 0, err
	}
	<-done
	return out, nil
}

// DnnHandle issues neural-net primitive work through its owning stream.
type DnnHandle struct {
	stream *Stream
}

func NewDnnHandle(stream *Stream) *DnnHandle {
	return &DnnHandle{stream: stream}
}

func (h *DnnHandle) Stream() *Stream { return h.stream }

// Relu queues an in-place rectifier over x.
func (h *DnnHandle) Relu(x []float32) error {
	return h.stream.Submit(func() {
		for i, v := range x {
			if v < 0 {
				x[i] = 0
			}
		}
	})
}

// BiasAdd queues x[i] += bias[i%len(bias)] over x.
func (h *DnnHandle) BiasAdd(bias, x []float32) error {
	if len(bias) == 0 {
		return ErrSizeMismatch
	}
	return h.stream.Submit(func() {
		for i := range x {
			x[i] += bias[i%len(bias)]
		}
	})
}
