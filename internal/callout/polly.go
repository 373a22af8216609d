// Package callout voices alert notices. A Synthesizer turns text into audio;
// an Announcer subscribes to rooms and feeds it alerts off the tick path.
package callout

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/polly"
	pollytypes "github.com/aws/aws-sdk-go-v2/service/polly/types"
	"github.com/aws/smithy-go"
)

// Result labels for a synthesis attempt.
const (
	ResultOK        = "ok"
	ResultDropped   = "dropped"
	ResultThrottled = "throttled"
	ResultRejected  = "rejected"
	ResultTimeout   = "timeout"
	ResultCanceled  = "canceled"
	ResultFailed    = "failed"
)

// Synthesizer renders speech.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) ([]byte, error)
}

// PollyConfig selects the Polly voice. Zero values select defaults.
type PollyConfig struct {
	Region  string
	VoiceID string
	Engine  string
	Timeout time.Duration
}

func (c PollyConfig) withDefaults() PollyConfig {
	if strings.TrimSpace(c.Region) == "" {
		c.Region = "us-east-1"
	}
	if strings.TrimSpace(c.VoiceID) == "" {
		c.VoiceID = "Joanna"
	}
	if strings.TrimSpace(c.Engine) == "" {
		c.Engine = "neural"
	}
	if c.Timeout <= 0 {
		c.Timeout = 10 * time.Second
	}
	return c
}

type synthClient interface {
	SynthesizeSpeech(ctx context.Context, params *polly.SynthesizeSpeechInput, optFns ...func(*polly.Options)) (*polly.SynthesizeSpeechOutput, error)
}

// Polly synthesizes MP3 through Amazon Polly. The AWS client is built on
// first use from the default credential chain.
type Polly struct {
	mu     sync.Mutex
	client synthClient
	cfg    PollyConfig
}

func NewPolly(cfg PollyConfig) *Polly {
	return &Polly{cfg: cfg.withDefaults()}
}

func newPollyWithClient(cfg PollyConfig, client synthClient) *Polly {
	return &Polly{cfg: cfg.withDefaults(), client: client}
}

func (p *Polly) Synthesize(ctx context.Context, text string) ([]byte, error) {
	if strings.TrimSpace(text) == "" {
		return nil, &Error{Result: ResultRejected, Err: errors.New("empty callout text")}
	}
	client, err := p.resolveClient(ctx)
	if err != nil {
		return nil, &Error{Result: ResultFailed, Err: err}
	}

	engine := pollytypes.EngineStandard
	if strings.EqualFold(p.cfg.Engine, "neural") {
		engine = pollytypes.EngineNeural
	}
	ctx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	defer cancel()

	out, err := client.SynthesizeSpeech(ctx, &polly.SynthesizeSpeechInput{
		Engine:       engine,
		OutputFormat: pollytypes.OutputFormatMp3,
		Text:         &text,
		TextType:     pollytypes.TextTypeText,
		VoiceId:      pollytypes.VoiceId(p.cfg.VoiceID),
	})
	if err != nil {
		return nil, &Error{Result: Classify(err), Err: err}
	}
	if out == nil || out.AudioStream == nil {
		return nil, &Error{Result: ResultFailed, Err: errors.New("polly returned no audio")}
	}
	defer out.AudioStream.Close()
	audio, err := io.ReadAll(out.AudioStream)
	if err != nil {
		return nil, &Error{Result: Classify(err), Err: fmt.Errorf("read audio: %w", err)}
	}
	return audio, nil
}

func (p *Polly) resolveClient(ctx context.Context) (synthClient, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.client != nil {
		return p.client, nil
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(p.cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	p.client = polly.NewFromConfig(awsCfg)
	return p.client, nil
}

// Error carries the result label of a failed synthesis.
type Error struct {
	Result string
	Err    error
}

func (e *Error) Error() string { return e.Result + ": " + e.Err.Error() }
func (e *Error) Unwrap() error { return e.Err }

// Classify maps a synthesis error to a result label.
func Classify(err error) string {
	if err == nil {
		return ResultOK
	}
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Result
	}
	if errors.Is(err, context.Canceled) {
		return ResultCanceled
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ResultTimeout
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "TooManyRequestsException", "ThrottlingException":
			return ResultThrottled
		case "InvalidSsmlException", "TextLengthExceededException", "LexiconNotFoundException",
			"MarksNotSupportedForFormatException", "InvalidSampleRateException", "EngineNotSupportedException":
			return ResultRejected
		}
	}
	return ResultFailed
}
