package tools

import (
	"fmt"
	"net/http"
)

// ToolID enumerates every tool the server exposes.
type ToolID int

const (
	MaxContextLength ToolID = iota
	MaxLength
	Generate
	ModelInfo
	Version
	PerfInfo
	TokenCount
	Detokenize
	Transcribe
	WebSearch
	TTS
	Abort
	LastLogprobs
	MultiplayerStatus
	MultiplayerGetStory
	MultiplayerSetStory
	SDModels
	SDSamplers
	Txt2Img
	Img2Img
	Interrogate
	Chat
	Complete

	numTools
)

// ChatTool is the only tool with conversational memory.
const ChatTool = Chat

func (id ToolID) String() string {
	if id < 0 || id >= numTools {
		return fmt.Sprintf("ToolID(%d)", int(id))
	}
	return catalog[id].Name
}

// Definition returns the catalog entry for id.
func (id ToolID) Definition() ToolDefinition {
	return catalog[id]
}

// Input shapes. Every struct embeds Target for the optional base address.

type NoInput struct {
	Target
}

type GenerateInput struct {
	Target
	Prompt           string   `json:"prompt" jsonschema_description:"Text prompt to continue."`
	MaxContextLength int      `json:"max_context_length,omitempty" jsonschema_description:"Maximum context tokens."`
	MaxLength        int      `json:"max_length,omitempty" jsonschema_description:"Number of tokens to generate."`
	Temperature      float64  `json:"temperature,omitempty" jsonschema_description:"Sampling temperature."`
	TopP             float64  `json:"top_p,omitempty" jsonschema_description:"Nucleus sampling threshold."`
	TopK             int      `json:"top_k,omitempty" jsonschema_description:"Top-k sampling."`
	RepPen           float64  `json:"rep_pen,omitempty" jsonschema_description:"Repetition penalty."`
	RepPenRange      int      `json:"rep_pen_range,omitempty" jsonschema_description:"Repetition penalty range."`
	StopSequence     []string `json:"stop_sequence,omitempty" jsonschema_description:"Sequences that end generation."`
	Memory           string   `json:"memory,omitempty" jsonschema_description:"Text always kept at the top of the context."`
	Grammar          string   `json:"grammar,omitempty" jsonschema_description:"GBNF grammar constraining the output."`
	SamplerSeed      int      `json:"sampler_seed,omitempty" jsonschema_description:"Seed for reproducible sampling."`
	Genkey           string   `json:"genkey,omitempty" jsonschema_description:"Key identifying this generation for abort and logprobs."`
}

type PromptInput struct {
	Target
	Prompt string `json:"prompt" jsonschema_description:"Text to tokenize."`
}

type DetokenizeInput struct {
	Target
	IDs []int `json:"ids" jsonschema_description:"Token ids to convert back to text."`
}

type TranscribeInput struct {
	Target
	AudioData         string `json:"audio_data" jsonschema_description:"Base64 encoded audio (wav or mp3)."`
	Prompt            string `json:"prompt,omitempty" jsonschema_description:"Optional prompt guiding the transcription."`
	SuppressNonSpeech bool   `json:"suppress_non_speech,omitempty" jsonschema_description:"Drop non-speech tokens."`
	Langcode          string `json:"langcode,omitempty" jsonschema_description:"Language code such as en."`
}

type WebSearchInput struct {
	Target
	Query string `json:"q" jsonschema_description:"Search query."`
}

type TTSInput struct {
	Target
	Input string `json:"input" jsonschema_description:"Text to speak."`
	Voice string `json:"voice,omitempty" jsonschema_description:"Voice name."`
}

type GenkeyInput struct {
	Target
	Genkey string `json:"genkey,omitempty" jsonschema_description:"Key of the generation to target."`
}

type MultiplayerStatusInput struct {
	Target
	Sender     string `json:"sender,omitempty" jsonschema_description:"Name of the polling client."`
	SenderBusy bool   `json:"senderbusy,omitempty" jsonschema_description:"Whether the sender is currently generating."`
}

type MultiplayerSetStoryInput struct {
	Target
	FullUpdate bool   `json:"full_update,omitempty" jsonschema_description:"Replace the whole story instead of appending."`
	DataFormat string `json:"data_format,omitempty" jsonschema_description:"Format of data, e.g. kcpp_lzma_b64."`
	Sender     string `json:"sender,omitempty" jsonschema_description:"Name of the client making the change."`
	Data       string `json:"data" jsonschema_description:"Story payload."`
}

type Txt2ImgInput struct {
	Target
	Prompt         string  `json:"prompt" jsonschema_description:"Image description."`
	NegativePrompt string  `json:"negative_prompt,omitempty" jsonschema_description:"What to avoid."`
	Width          int     `json:"width,omitempty" jsonschema_description:"Image width in pixels."`
	Height         int     `json:"height,omitempty" jsonschema_description:"Image height in pixels."`
	Steps          int     `json:"steps,omitempty" jsonschema_description:"Sampling steps."`
	CfgScale       float64 `json:"cfg_scale,omitempty" jsonschema_description:"Classifier free guidance scale."`
	SamplerName    string  `json:"sampler_name,omitempty" jsonschema_description:"Sampler, see kobold_sd_samplers."`
	Seed           int     `json:"seed,omitempty" jsonschema_description:"Random seed, -1 for random."`
}

type Img2ImgInput struct {
	Target
	Prompt            string   `json:"prompt" jsonschema_description:"Image description."`
	InitImages        []string `json:"init_images" jsonschema_description:"Base64 encoded source images."`
	NegativePrompt    string   `json:"negative_prompt,omitempty" jsonschema_description:"What to avoid."`
	DenoisingStrength float64  `json:"denoising_strength,omitempty" jsonschema_description:"How far to move from the source image (0-1)."`
	Width             int      `json:"width,omitempty" jsonschema_description:"Image width in pixels."`
	Height            int      `json:"height,omitempty" jsonschema_description:"Image height in pixels."`
	Steps             int      `json:"steps,omitempty" jsonschema_description:"Sampling steps."`
	CfgScale          float64  `json:"cfg_scale,omitempty" jsonschema_description:"Classifier free guidance scale."`
	SamplerName       string   `json:"sampler_name,omitempty" jsonschema_description:"Sampler name."`
	Seed              int      `json:"seed,omitempty" jsonschema_description:"Random seed, -1 for random."`
}

type InterrogateInput struct {
	Target
	Image string `json:"image" jsonschema_description:"Base64 encoded image to caption."`
	Model string `json:"model,omitempty" jsonschema_description:"Interrogation model, e.g. clip."`
}

// ChatMessage is one element of the chat messages array.
type ChatMessage struct {
	Role    string `json:"role" jsonschema:"enum=system,enum=user,enum=assistant" jsonschema_description:"Speaker of the message."`
	Content string `json:"content" jsonschema_description:"Message text."`
}

type ChatInput struct {
	Target
	Messages    []ChatMessage `json:"messages" jsonschema_description:"New messages; they are appended to the conversation kept by the server."`
	Model       string        `json:"model,omitempty" jsonschema_description:"Model name (informational for KoboldCpp)."`
	Temperature float64       `json:"temperature,omitempty" jsonschema_description:"Sampling temperature."`
	TopP        float64       `json:"top_p,omitempty" jsonschema_description:"Nucleus sampling threshold."`
	MaxTokens   int           `json:"max_tokens,omitempty" jsonschema_description:"Maximum tokens to generate."`
	Stop        []string      `json:"stop,omitempty" jsonschema_description:"Stop sequences."`
}

type CompleteInput struct {
	Target
	Prompt      string   `json:"prompt" jsonschema_description:"Prompt to complete."`
	Model       string   `json:"model,omitempty" jsonschema_description:"Model name (informational for KoboldCpp)."`
	Temperature float64  `json:"temperature,omitempty" jsonschema_description:"Sampling temperature."`
	TopP        float64  `json:"top_p,omitempty" jsonschema_description:"Nucleus sampling threshold."`
	MaxTokens   int      `json:"max_tokens,omitempty" jsonschema_description:"Maximum tokens to generate."`
	Stop        []string `json:"stop,omitempty" jsonschema_description:"Stop sequences."`
}

var noInputSchema = GenerateSchema[NoInput]()

// catalog is indexed by ToolID; catalog_test checks every ID has an entry.
var catalog = [numTools]ToolDefinition{
	MaxContextLength: {
		Name:        "kobold_max_context_length",
		Description: "Get the maximum context length the loaded model supports.",
		Method:      http.MethodGet,
		Endpoint:    "/api/v1/config/max_context_length",
		InputSchema: noInputSchema,
	},
	MaxLength: {
		Name:        "kobold_max_length",
		Description: "Get the default number of tokens generated per request.",
		Method:      http.MethodGet,
		Endpoint:    "/api/v1/config/max_length",
		InputSchema: noInputSchema,
	},
	Generate: {
		Name:        "kobold_generate",
		Description: "Generate text from a prompt with the KoboldAI native API.",
		Method:      http.MethodPost,
		Endpoint:    "/api/v1/generate",
		InputSchema: GenerateSchema[GenerateInput](),
	},
	ModelInfo: {
		Name:        "kobold_model_info",
		Description: "Get the name of the currently loaded model.",
		Method:      http.MethodGet,
		Endpoint:    "/api/v1/model",
		InputSchema: noInputSchema,
	},
	Version: {
		Name:        "kobold_version",
		Description: "Get the KoboldCpp version.",
		Method:      http.MethodGet,
		Endpoint:    "/api/v1/info/version",
		InputSchema: noInputSchema,
	},
	PerfInfo: {
		Name:        "kobold_perf_info",
		Description: "Get performance statistics of the last generation.",
		Method:      http.MethodGet,
		Endpoint:    "/api/extra/perf",
		InputSchema: noInputSchema,
	},
	TokenCount: {
		Name:        "kobold_token_count",
		Description: "Count the tokens a prompt encodes to.",
		Method:      http.MethodPost,
		Endpoint:    "/api/extra/tokencount",
		InputSchema: GenerateSchema[PromptInput](),
	},
	Detokenize: {
		Name:        "kobold_detokenize",
		Description: "Convert token ids back into text.",
		Method:      http.MethodPost,
		Endpoint:    "/api/extra/detokenize",
		InputSchema: GenerateSchema[DetokenizeInput](),
	},
	Transcribe: {
		Name:        "kobold_transcribe",
		Description: "Transcribe audio with the loaded Whisper model.",
		Method:      http.MethodPost,
		Endpoint:    "/api/extra/transcribe",
		InputSchema: GenerateSchema[TranscribeInput](),
	},
	WebSearch: {
		Name:        "kobold_web_search",
		Description: "Run a web search through KoboldCpp.",
		Method:      http.MethodPost,
		Endpoint:    "/api/extra/websearch",
		InputSchema: GenerateSchema[WebSearchInput](),
	},
	TTS: {
		Name:        "kobold_tts",
		Description: "Synthesize speech from text.",
		Method:      http.MethodPost,
		Endpoint:    "/api/extra/tts",
		InputSchema: GenerateSchema[TTSInput](),
	},
	Abort: {
		Name:        "kobold_abort",
		Description: "Abort the generation in progress on the remote server.",
		Method:      http.MethodPost,
		Endpoint:    "/api/extra/abort",
		InputSchema: GenerateSchema[GenkeyInput](),
	},
	LastLogprobs: {
		Name:        "kobold_last_logprobs",
		Description: "Get token logprobs of the last generation.",
		Method:      http.MethodPost,
		Endpoint:    "/api/extra/last_logprobs",
		InputSchema: GenerateSchema[GenkeyInput](),
	},
	MultiplayerStatus: {
		Name:        "kobold_multiplayer_status",
		Description: "Poll the multiplayer session status.",
		Method:      http.MethodPost,
		Endpoint:    "/api/extra/multiplayer/status",
		InputSchema: GenerateSchema[MultiplayerStatusInput](),
	},
	MultiplayerGetStory: {
		Name:        "kobold_multiplayer_get_story",
		Description: "Fetch the shared multiplayer story.",
		Method:      http.MethodPost,
		Endpoint:    "/api/extra/multiplayer/getstory",
		InputSchema: noInputSchema,
	},
	MultiplayerSetStory: {
		Name:        "kobold_multiplayer_set_story",
		Description: "Update the shared multiplayer story.",
		Method:      http.MethodPost,
		Endpoint:    "/api/extra/multiplayer/setstory",
		InputSchema: GenerateSchema[MultiplayerSetStoryInput](),
	},
	SDModels: {
		Name:        "kobold_sd_models",
		Description: "List the loaded Stable Diffusion models.",
		Method:      http.MethodGet,
		Endpoint:    "/sdapi/v1/sd-models",
		InputSchema: noInputSchema,
	},
	SDSamplers: {
		Name:        "kobold_sd_samplers",
		Description: "List the available Stable Diffusion samplers.",
		Method:      http.MethodGet,
		Endpoint:    "/sdapi/v1/samplers",
		InputSchema: noInputSchema,
	},
	Txt2Img: {
		Name:        "kobold_txt2img",
		Description: "Generate an image from a text prompt.",
		Method:      http.MethodPost,
		Endpoint:    "/sdapi/v1/txt2img",
		InputSchema: GenerateSchema[Txt2ImgInput](),
	},
	Img2Img: {
		Name:        "kobold_img2img",
		Description: "Transform an existing image guided by a prompt.",
		Method:      http.MethodPost,
		Endpoint:    "/sdapi/v1/img2img",
		InputSchema: GenerateSchema[Img2ImgInput](),
	},
	Interrogate: {
		Name:        "kobold_interrogate",
		Description: "Describe the content of an image.",
		Method:      http.MethodPost,
		Endpoint:    "/sdapi/v1/interrogate",
		InputSchema: GenerateSchema[InterrogateInput](),
	},
	Chat: {
		Name: "kobold_chat",
		Description: `Chat completion through the OpenAI compatible API.

The server keeps the conversation: messages are appended to everything sent so far, the whole history is sent, and the assistant reply is remembered for the next call.`,
		Method:      http.MethodPost,
		Endpoint:    "/v1/chat/completions",
		InputSchema: GenerateSchema[ChatInput](),
	},
	Complete: {
		Name:        "kobold_complete",
		Description: "Text completion through the OpenAI compatible API.",
		Method:      http.MethodPost,
		Endpoint:    "/v1/completions",
		InputSchema: GenerateSchema[CompleteInput](),
	},
}

func init() {
	for i := range catalog {
		catalog[i].ID = ToolID(i)
	}
}

// All returns every definition in catalog order.
func All() []ToolDefinition {
	defs := make([]ToolDefinition, numTools)
	copy(defs, catalog[:])
	return defs
}
