package message

import "context"

// PreviewKind classifies how a reply target renders.
type PreviewKind string

const (
	PreviewText        PreviewKind = "text"
	PreviewImage       PreviewKind = "image"
	PreviewGif         PreviewKind = "gif"
	PreviewPost        PreviewKind = "post"
	PreviewReel        PreviewKind = "reel"
	PreviewUnavailable PreviewKind = "unavailable"
)

// ReplyPreview is the resolved rendering of a reply target.
type ReplyPreview struct {
	Kind     PreviewKind
	Text     string // inline body, PreviewText only
	ImageURL string // thumbnail or playable URL for media previews
}

// GifResolver turns a provider GIF id into a playable URL.
type GifResolver interface {
	Resolve(ctx context.Context, id string) (string, error)
}

// ResolvePreview computes the reply preview for target. Returns nil when
// there is nothing to render (no target, or a post/reel whose media is
// gone). A failed GIF lookup degrades to an "unavailable" placeholder;
// resolution never fails outright.
func ResolvePreview(ctx context.Context, target *Message, gifs GifResolver) *ReplyPreview {
	if target == nil {
		return nil
	}

	switch target.Kind {
	case KindText:
		return &ReplyPreview{Kind: PreviewText, Text: target.Content}

	case KindImage:
		return &ReplyPreview{Kind: PreviewImage, ImageURL: target.Content}

	case KindGif:
		if gifs == nil {
			return &ReplyPreview{Kind: PreviewUnavailable}
		}
		url, err := gifs.Resolve(ctx, target.Content)
		if err != nil || url == "" {
			return &ReplyPreview{Kind: PreviewUnavailable}
		}
		return &ReplyPreview{Kind: PreviewGif, ImageURL: url}

	case KindPost:
		if target.Post == nil || target.Post.ImageURL == "" {
			return nil
		}
		return &ReplyPreview{Kind: PreviewPost, ImageURL: target.Post.ImageURL}

	case KindReel:
		if target.Post == nil || target.Post.ImageURL == "" {
			return nil
		}
		return &ReplyPreview{Kind: PreviewReel, ImageURL: target.Post.ImageURL}

	default:
		return &ReplyPreview{Kind: PreviewUnavailable}
	}
}
