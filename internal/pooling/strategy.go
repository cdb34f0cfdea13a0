package pooling

// Params are the encoder construction parameters every strategy carries.
// Pooling itself never reads them.
type Params struct {
	Ref       ModelRef
	Device    string
	Tokenizer string
	// MaxLength is the token limit applied before encoding; zero means none.
	MaxLength int
	ModelArgs map[string]any
}

// Strategy reduces encoder output for one batch. Implementations hold no
// state beyond their construction parameters and are safe for concurrent use.
type Strategy interface {
	Method() Method
	Params() Params
	Pool(b TokenBatch) (Tensor, error)
}

// RawPooling returns hidden states unchanged, leaving reduction to the caller.
type RawPooling struct{ params Params }

// ClsPooling returns the hidden state of the first token of each sequence.
type ClsPooling struct{ params Params }

// MeanPooling returns the mask-weighted mean of each sequence's token vectors.
type MeanPooling struct{ params Params }

func NewRawPooling(p Params) *RawPooling   { return &RawPooling{params: p} }
func NewClsPooling(p Params) *ClsPooling   { return &ClsPooling{params: p} }
func NewMeanPooling(p Params) *MeanPooling { return &MeanPooling{params: p} }

func (*RawPooling) Method() Method  { return Raw }
func (*ClsPooling) Method() Method  { return CLS }
func (*MeanPooling) Method() Method { return Mean }

func (s *RawPooling) Params() Params  { return s.params }
func (s *ClsPooling) Params() Params  { return s.params }
func (s *MeanPooling) Params() Params { return s.params }

// Pool returns a tensor sharing b.Hidden, shaped [batch, seq, dim].
func (*RawPooling) Pool(b TokenBatch) (Tensor, error) {
	if err := b.Validate(); err != nil {
		return Tensor{}, err
	}
	return Tensor{Data: b.Hidden, Shape: []int{b.BatchSize, b.SeqLen, b.Dim}}, nil
}

// Pool ignores the attention mask; position 0 is assumed to be [CLS].
func (*ClsPooling) Pool(b TokenBatch) (Tensor, error) {
	if err := b.Validate(); err != nil {
		return Tensor{}, err
	}
	return Tensor{Data: clsPool(b), Shape: []int{b.BatchSize, b.Dim}}, nil
}

// Pool averages unmasked tokens. Rows with no unmasked tokens pool to zero.
func (*MeanPooling) Pool(b TokenBatch) (Tensor, error) {
	if err := b.Validate(); err != nil {
		return Tensor{}, err
	}
	return Tensor{Data: meanPool(b), Shape: []int{b.BatchSize, b.Dim}}, nil
}
