package entity

import "context"

// Body is the closed set of message kinds. Each variant knows which render
// call of the master adapter it maps to.
type Body interface {
	Kind() MessageKind
	Render(ctx context.Context, r Renderer, req *RenderRequest) (*MasterHandle, error)
	sealed()
}

// Attachment describes a media payload. Data is transient and never persisted.
type Attachment struct {
	FileID   string `json:"file_id,omitempty"`
	UniqueID string `json:"unique_id,omitempty"`
	URL      string `json:"url,omitempty"`
	Path     string `json:"path,omitempty"`
	Filename string `json:"filename,omitempty"`
	MIME     string `json:"mime,omitempty"`
	Size     int64  `json:"size,omitempty"`
	Data     []byte `json:"-"`
}

type TextBody struct{}

func (TextBody) Kind() MessageKind { return KindText }
func (TextBody) Render(ctx context.Context, r Renderer, req *RenderRequest) (*MasterHandle, error) {
	return r.RenderText(ctx, req)
}
func (TextBody) sealed() {}

type ImageBody struct {
	Attachment
}

func (ImageBody) Kind() MessageKind { return KindImage }
func (b ImageBody) Render(ctx context.Context, r Renderer, req *RenderRequest) (*MasterHandle, error) {
	return r.RenderImage(ctx, req, &b.Attachment)
}
func (ImageBody) sealed() {}

type FileBody struct {
	Attachment
}

func (FileBody) Kind() MessageKind { return KindFile }
func (b FileBody) Render(ctx context.Context, r Renderer, req *RenderRequest) (*MasterHandle, error) {
	return r.RenderFile(ctx, req, &b.Attachment)
}
func (FileBody) sealed() {}

// AudioBody covers music files and voice notes.
type AudioBody struct {
	Attachment
	Voice bool `json:"voice,omitempty"`
}

func (AudioBody) Kind() MessageKind { return KindAudio }
func (b AudioBody) Render(ctx context.Context, r Renderer, req *RenderRequest) (*MasterHandle, error) {
	return r.RenderAudio(ctx, req, &b.Attachment)
}
func (AudioBody) sealed() {}

// VideoBody covers videos and silent looping animations.
type VideoBody struct {
	Attachment
	Animated bool `json:"animated,omitempty"`
}

func (VideoBody) Kind() MessageKind { return KindVideo }
func (b VideoBody) Render(ctx context.Context, r Renderer, req *RenderRequest) (*MasterHandle, error) {
	return r.RenderVideo(ctx, req, &b.Attachment)
}
func (VideoBody) sealed() {}

type StickerBody struct {
	Attachment
}

func (StickerBody) Kind() MessageKind { return KindSticker }
func (b StickerBody) Render(ctx context.Context, r Renderer, req *RenderRequest) (*MasterHandle, error) {
	return r.RenderSticker(ctx, req, &b.Attachment)
}
func (StickerBody) sealed() {}

type LocationBody struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Title     string  `json:"title,omitempty"`
	Address   string  `json:"address,omitempty"`
}

func (LocationBody) Kind() MessageKind { return KindLocation }
func (b LocationBody) Render(ctx context.Context, r Renderer, req *RenderRequest) (*MasterHandle, error) {
	return r.RenderLocation(ctx, req, &b)
}
func (LocationBody) sealed() {}

type LinkBody struct {
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	URL         string `json:"url"`
	Image       string `json:"image,omitempty"`
}

func (LinkBody) Kind() MessageKind { return KindLink }
func (b LinkBody) Render(ctx context.Context, r Renderer, req *RenderRequest) (*MasterHandle, error) {
	return r.RenderLink(ctx, req, &b)
}
func (LinkBody) sealed() {}

// UnsupportedBody keeps the platform's name for the type so errors can quote it.
type UnsupportedBody struct {
	TypeName string `json:"type_name"`
}

func (UnsupportedBody) Kind() MessageKind { return KindUnsupported }
func (UnsupportedBody) Render(ctx context.Context, r Renderer, req *RenderRequest) (*MasterHandle, error) {
	return r.RenderUnsupported(ctx, req)
}
func (UnsupportedBody) sealed() {}
