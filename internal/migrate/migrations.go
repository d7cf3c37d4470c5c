package migrate

import (
	"github.com/franz/suno-catalog/internal/locality"
	"github.com/franz/suno-catalog/internal/prompt"
	"github.com/franz/suno-catalog/internal/store"
)

// Migrations returns the canonical table history. Locality flags are
// probed against the given media cache at migration time.
func Migrations(prober *locality.Prober) []Migration {
	return []Migration{
		{
			Version:  store.SongsV2,
			Name:     "local media flags",
			Columns:  store.SongColumns(store.SongsV2),
			Computed: LocalityColumns(prober),
		},
		{
			Version:  store.SongsV3,
			Name:     "prompt template",
			Columns:  store.SongColumns(store.SongsV3),
			Computed: TemplateColumns(),
		},
	}
}

// LocalityColumns computes local_image and local_audio from the cache
func LocalityColumns(prober *locality.Prober) []Computed {
	probe := func(kind locality.Kind) func(string, Row) (any, error) {
		return func(id string, _ Row) (any, error) {
			return prober.Exists(id, kind), nil
		}
	}
	return []Computed{
		{Column: "local_image", Fn: probe(locality.KindImage)},
		{Column: "local_audio", Fn: probe(locality.KindAudio)},
	}
}

// TemplateColumns computes prompt_template and template_length from
// meta_prompt
func TemplateColumns() []Computed {
	extract := func(row Row) prompt.Template {
		text, _ := row["meta_prompt"].(string)
		return prompt.Extract(text)
	}
	return []Computed{
		{
			Column: "prompt_template",
			Inputs: []string{"meta_prompt"},
			Fn: func(_ string, row Row) (any, error) {
				return extract(row).String(), nil
			},
		},
		{
			Column: "template_length",
			Inputs: []string{"meta_prompt"},
			Fn: func(_ string, row Row) (any, error) {
				return extract(row).Len(), nil
			},
		},
	}
}
