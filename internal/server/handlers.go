package server

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/franz/suno-catalog/internal/store"
)

// SongView is a song plus the media sources a client should play
type SongView struct {
	*store.Song
	AudioSrc string `json:"audio_src"`
	ImageSrc string `json:"image_src"`
}

// SongsResponse is one page of search results
type SongsResponse struct {
	Total   int        `json:"total"`
	Limit   int        `json:"limit"`
	Offset  int        `json:"offset"`
	Songs   []SongView `json:"songs"`
	Message string     `json:"message,omitempty"`
}

// view picks local media when the cache flags say it is there
func (s *Server) view(song *store.Song) SongView {
	v := SongView{Song: song, AudioSrc: song.AudioURL, ImageSrc: song.ImageURL}
	if s.mediaRoot == "" {
		return v
	}
	if song.LocalAudio {
		v.AudioSrc = mediaURL(song.ID, "mp3")
	}
	if song.LocalImage {
		v.ImageSrc = mediaURL(song.ID, "jpeg")
	}
	return v
}

func (s *Server) searchSongs(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", DefaultLimit)
	if limit <= 0 || limit > MaxLimit {
		return fiber.NewError(fiber.StatusBadRequest, "limit must be between 1 and 500")
	}
	offset := c.QueryInt("offset", 0)
	if offset < 0 {
		return fiber.NewError(fiber.StatusBadRequest, "offset must not be negative")
	}

	filter := store.SongFilter{
		Search:    strings.TrimSpace(c.Query("q")),
		Language:  c.Query("language"),
		Model:     c.Query("model"),
		LocalOnly: c.QueryBool("local", false),
		Limit:     limit,
		Offset:    offset,
	}

	result, err := s.store.SearchSongs(c.UserContext(), filter)
	if err != nil {
		return err
	}
	s.metrics.searchResults.Observe(float64(result.Total))

	resp := SongsResponse{
		Total:  result.Total,
		Limit:  limit,
		Offset: offset,
		Songs:  make([]SongView, 0, len(result.Songs)),
	}
	for _, song := range result.Songs {
		resp.Songs = append(resp.Songs, s.view(song))
	}
	if len(resp.Songs) == 0 {
		resp.Message = NoResults
	}

	return c.JSON(resp)
}

func (s *Server) getSong(c *fiber.Ctx) error {
	song, err := s.store.GetSong(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	if song == nil {
		return fiber.NewError(fiber.StatusNotFound, "song not found")
	}
	return c.JSON(s.view(song))
}

func (s *Server) languages(c *fiber.Ctx) error {
	langs, err := s.store.Languages(c.UserContext())
	if err != nil {
		return err
	}
	if langs == nil {
		langs = []store.Language{}
	}
	return c.JSON(fiber.Map{"languages": langs})
}

func (s *Server) models(c *fiber.Ctx) error {
	models, err := s.store.Models(c.UserContext())
	if err != nil {
		return err
	}
	if models == nil {
		models = []store.Model{}
	}
	return c.JSON(fiber.Map{"models": models})
}

func (s *Server) health(c *fiber.Ctx) error {
	count, err := s.store.CountSongs(c.UserContext())
	if err != nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"status": "unavailable", "error": err.Error()})
	}
	return c.JSON(fiber.Map{"status": "ok", "songs": count})
}
