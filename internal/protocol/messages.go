package protocol

// SUBSCRIBE (client -> server). The first message on a stream; later
// SUBSCRIBE messages append more chunks.
type SubscribeMsg struct {
	Type            string   `json:"type"`
	ProtocolVersion string   `json:"protocol_version"`
	Generator       string   `json:"generator,omitempty"`
	Chunks          [][2]int `json:"chunks"`
	// IncludeBands adds the RLE-encoded color band index of every sample,
	// using Palette or the generator's palette.
	IncludeBands bool   `json:"include_bands,omitempty"`
	Palette      string `json:"palette,omitempty"`
}

// WELCOME (server -> client), sent once after the first SUBSCRIBE.
type WelcomeMsg struct {
	Type            string       `json:"type"`
	ProtocolVersion string       `json:"protocol_version"`
	Generator       GeneratorRef `json:"generator"`
}

type GeneratorRef struct {
	ID         string  `json:"id"`
	Digest     string  `json:"digest"`
	Variant    string  `json:"variant"`
	Smoothstep int     `json:"smoothstep"`
	Depth      int     `json:"depth"`
	ChunkSize  int     `json:"chunk_size"`
	OutputSize int     `json:"output_size"`
	WorldSize  [2]int  `json:"world_size"`
	Seed       int64   `json:"seed"`
	Closed     bool    `json:"closed"`
	MaxH       float64 `json:"max_h"`
	Palette    string  `json:"palette"`
	Normalize  string  `json:"normalize"`
}

// CHUNK (server -> client): one generated chunk. Data holds Width*Height
// samples in row-major order, quantized over [Lo, Hi].
type ChunkMsg struct {
	Type            string  `json:"type"`
	ProtocolVersion string  `json:"protocol_version"`
	Generator       string  `json:"generator"`
	Digest          string  `json:"digest"`
	CX              int     `json:"cx"`
	CY              int     `json:"cy"`
	Width           int     `json:"width"`
	Height          int     `json:"height"`
	Lo              float64 `json:"lo"`
	Hi              float64 `json:"hi"`
	Encoding        string  `json:"encoding"`
	Data            string  `json:"data"`
	Bands           string  `json:"bands,omitempty"`
	Cached          bool    `json:"cached,omitempty"`
}

// ERROR (server -> client).
type ErrorMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Code            string `json:"code"`
	Message         string `json:"message"`
}

func NewError(code, message string) ErrorMsg {
	return ErrorMsg{Type: TypeError, ProtocolVersion: Version, Code: code, Message: message}
}
