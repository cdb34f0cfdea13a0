package embedder

import (
	"fmt"
	"strconv"
	"strings"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
)

// ortEnv manages global ONNX Runtime initialization (process-wide singleton).
var ortEnv struct {
	once sync.Once
	err  error
}

// initORT initializes the ONNX Runtime environment. Only the first call's
// library path has any effect.
func initORT(libPath string) error {
	ortEnv.once.Do(func() {
		if libPath != "" {
			ort.SetSharedLibraryPath(libPath)
		}
		ortEnv.err = ort.InitializeEnvironment()
	})
	return ortEnv.err
}

// sessionConfig describes how to build an inference session. Exactly one of
// modelPath and modelData is set.
type sessionConfig struct {
	modelPath string
	modelData []byte
	libPath   string
	device    string
	intraOp   int
	interOp   int
}

// session wraps a DynamicAdvancedSession for BERT-style encoders whose first
// output is last_hidden_state [batch, seq, dim].
type session struct {
	sess       *ort.DynamicAdvancedSession
	inputNames []string
	outputName string
	dim        int
}

func newSession(cfg sessionConfig) (*session, error) {
	if err := initORT(cfg.libPath); err != nil {
		return nil, fmt.Errorf("onnx: failed to initialize runtime: %w", err)
	}

	var (
		inputs, outputs []ort.InputOutputInfo
		err             error
	)
	if cfg.modelData != nil {
		inputs, outputs, err = ort.GetInputOutputInfoWithONNXData(cfg.modelData)
	} else {
		inputs, outputs, err = ort.GetInputOutputInfo(cfg.modelPath)
	}
	if err != nil {
		return nil, fmt.Errorf("onnx: failed to read model info: %w", err)
	}

	inputNames, err := inputOrder(inputs)
	if err != nil {
		return nil, err
	}
	if len(outputs) == 0 {
		return nil, fmt.Errorf("onnx: model has no outputs")
	}
	dims := outputs[0].Dimensions
	if len(dims) != 3 || dims[2] <= 0 {
		return nil, fmt.Errorf("onnx: expected [batch, seq, dim] output, got %v", dims)
	}

	opts, err := ort.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("onnx: failed to create session options: %w", err)
	}
	defer opts.Destroy()
	if cfg.intraOp > 0 {
		opts.SetIntraOpNumThreads(cfg.intraOp)
	}
	if cfg.interOp > 0 {
		opts.SetInterOpNumThreads(cfg.interOp)
	}
	if err := applyDevice(opts, cfg.device); err != nil {
		return nil, err
	}

	outputNames := []string{outputs[0].Name}
	var s *ort.DynamicAdvancedSession
	if cfg.modelData != nil {
		s, err = ort.NewDynamicAdvancedSessionWithONNXData(cfg.modelData, inputNames, outputNames, opts)
	} else {
		s, err = ort.NewDynamicAdvancedSession(cfg.modelPath, inputNames, outputNames, opts)
	}
	if err != nil {
		return nil, fmt.Errorf("onnx: failed to create session: %w", err)
	}

	return &session{
		sess:       s,
		inputNames: inputNames,
		outputName: outputNames[0],
		dim:        int(dims[2]),
	}, nil
}

// inputOrder returns the model's inputs in feed order. input_ids and
// attention_mask are required; token_type_ids is fed when present.
func inputOrder(inputs []ort.InputOutputInfo) ([]string, error) {
	have := make(map[string]bool, len(inputs))
	for _, in := range inputs {
		have[in.Name] = true
	}
	for _, name := range []string{"input_ids", "attention_mask"} {
		if !have[name] {
			return nil, fmt.Errorf("onnx: model missing required input %q", name)
		}
	}
	names := []string{"input_ids", "attention_mask"}
	if have["token_type_ids"] {
		names = append(names, "token_type_ids")
	}
	return names, nil
}

// parseDevice splits "cuda:1" into ("cuda", 1). An empty selector is cpu.
func parseDevice(device string) (kind string, id int, err error) {
	d := strings.ToLower(strings.TrimSpace(device))
	if d == "" {
		return "cpu", 0, nil
	}
	kind, idx, ok := strings.Cut(d, ":")
	if !ok {
		return kind, 0, nil
	}
	id, err = strconv.Atoi(idx)
	if err != nil || id < 0 {
		return "", 0, fmt.Errorf("onnx: invalid device %q", device)
	}
	return kind, id, nil
}

func applyDevice(opts *ort.SessionOptions, device string) error {
	kind, id, err := parseDevice(device)
	if err != nil {
		return err
	}
	switch kind {
	case "cpu":
		return nil
	case "cuda", "gpu":
		cuda, err := ort.NewCUDAProviderOptions()
		if err != nil {
			return fmt.Errorf("onnx: cuda provider: %w", err)
		}
		defer cuda.Destroy()
		if err := cuda.Update(map[string]string{"device_id": strconv.Itoa(id)}); err != nil {
			return fmt.Errorf("onnx: cuda provider: %w", err)
		}
		if err := opts.AppendExecutionProviderCUDA(cuda); err != nil {
			return fmt.Errorf("onnx: cuda provider: %w", err)
		}
		return nil
	default:
		return fmt.Errorf("onnx: unsupported device %q", device)
	}
}

// infer runs the encoder on e and returns last_hidden_state as flat
// [batch * seq * dim].
func (s *session) infer(e encoding) ([]float32, error) {
	shape := ort.NewShape(int64(e.batch), int64(e.seq))

	feeds := map[string][]int64{
		"input_ids":      e.ids,
		"attention_mask": e.mask,
		"token_type_ids": e.typeIDs,
	}
	inputs := make([]ort.Value, 0, len(s.inputNames))
	defer func() {
		for _, v := range inputs {
			v.Destroy()
		}
	}()
	for _, name := range s.inputNames {
		t, err := ort.NewTensor(shape, feeds[name])
		if err != nil {
			return nil, fmt.Errorf("onnx: failed to create %s tensor: %w", name, err)
		}
		inputs = append(inputs, t)
	}

	out, err := ort.NewEmptyTensor[float32](ort.NewShape(int64(e.batch), int64(e.seq), int64(s.dim)))
	if err != nil {
		return nil, fmt.Errorf("onnx: failed to create output tensor: %w", err)
	}
	defer out.Destroy()

	if err := s.sess.Run(inputs, []ort.Value{out}); err != nil {
		return nil, fmt.Errorf("onnx: inference failed: %w", err)
	}

	// Copy data out before tensor is destroyed.
	src := out.GetData()
	hidden := make([]float32, len(src))
	copy(hidden, src)
	return hidden, nil
}

func (s *session) close() error {
	return s.sess.Destroy()
}
