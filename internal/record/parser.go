// Package record maps one external song record onto the flat canonical
// column set.
package record

import (
	"fmt"

	"github.com/ohler55/ojg"
	"github.com/ohler55/ojg/jp"
	"github.com/ohler55/ojg/oj"

	"github.com/franz/suno-catalog/internal/util"
)

// Field binds a canonical column to its location in the source record
type Field struct {
	Column string
	Path   jp.Expr
}

func top(key string) jp.Expr {
	return jp.C(key)
}

func meta(key string) jp.Expr {
	return jp.C("metadata").C(key)
}

// Fields lists the canonical base columns in table order
var Fields = []Field{
	{"id", top("id")},
	{"video_url", top("video_url")},
	{"audio_url", top("audio_url")},
	{"image_url", top("image_url")},
	{"image_large_url", top("image_large_url")},
	{"is_video_pending", top("is_video_pending")},
	{"major_model_version", top("major_model_version")},
	{"model_name", top("model_name")},
	{"reaction", top("reaction")},
	{"display_name", top("display_name")},
	{"handle", top("handle")},
	{"is_handle_updated", top("is_handle_updated")},
	{"avatar_image_url", top("avatar_image_url")},
	{"is_following_creator", top("is_following_creator")},
	{"user_id", top("user_id")},
	{"created_at", top("created_at")},
	{"status", top("status")},
	{"title", top("title")},
	{"play_count", top("play_count")},
	{"upvote_count", top("upvote_count")},
	{"is_public", top("is_public")},
	{"meta_tags", meta("tags")},
	{"meta_negative_tags", meta("negative_tags")},
	{"meta_prompt", meta("prompt")},
	{"meta_audio_prompt_id", meta("audio_prompt_id")},
	{"meta_history", meta("history")},
	{"meta_concat_history", meta("concat_history")},
	{"meta_stem_from_id", meta("stem_from_id")},
	{"meta_type", meta("type")},
	{"meta_duration", meta("duration")},
	{"meta_refund_credits", meta("refund_credits")},
	{"meta_stream", meta("stream")},
	{"meta_infill", meta("infill")},
	{"meta_has_vocal", meta("has_vocal")},
	{"meta_is_audio_upload_tos_accepted", meta("is_audio_upload_tos_accepted")},
	{"meta_error_type", meta("error_type")},
	{"meta_error_message", meta("error_message")},
	{"meta_configurations", meta("configurations")},
	{"meta_artist_clip_id", meta("artist_clip_id")},
	{"meta_cover_clip_id", meta("cover_clip_id")},
	{"meta_prompt_lang", meta("prompt_lang")},
	{"meta_gpt_lang", meta("gpt_lang")},
}

// Columns returns the canonical column names in table order
func Columns() []string {
	cols := make([]string, len(Fields))
	for i, f := range Fields {
		cols[i] = f.Column
	}
	return cols
}

// Record is one parsed source record, positionally aligned with Fields
type Record struct {
	values []any
}

// Values returns the column values in the order of Columns
func (r *Record) Values() []any {
	return r.values
}

// ID returns the record identifier, or "" when absent or not a string
func (r *Record) ID() string {
	id, _ := r.values[0].(string)
	return id
}

// Value returns the value of one column, or nil when unknown
func (r *Record) Value(column string) any {
	for i, f := range Fields {
		if f.Column == column {
			return r.values[i]
		}
	}
	return nil
}

var canonical = &ojg.Options{Sort: true}

// Parse decodes one JSON object and flattens it onto the canonical
// columns. Absent keys become nil; list and object values are stored as
// canonical JSON text; scalars pass through unchecked.
func Parse(data []byte) (*Record, error) {
	doc, err := oj.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}

	root, ok := doc.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("top-level value is %T: %w", doc, util.ErrNotObject)
	}

	return FromMap(root), nil
}

// FromMap flattens an already decoded record
func FromMap(root map[string]any) *Record {
	values := make([]any, len(Fields))
	for i, f := range Fields {
		values[i] = encode(f.Path.First(root))
	}
	return &Record{values: values}
}

func encode(v any) any {
	switch v.(type) {
	case []any, map[string]any:
		return oj.JSON(v, canonical)
	default:
		return v
	}
}
