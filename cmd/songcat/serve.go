package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/franz/suno-catalog/internal/server"
	"github.com/franz/suno-catalog/internal/util"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve catalog searches and cached media over HTTP",
	Long: `Start an HTTP server exposing the catalog:

  GET /api/songs?q=&language=&model=&local=&limit=&offset=
  GET /api/songs/:id
  GET /api/languages
  GET /api/models
  GET /media/<id>.mp3, /media/<id>.jpeg
  GET /healthz

Songs carry audio_src and image_src pointing at the local cache when the
media flags are set, otherwise at the remote URLs.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("addr", ":8080", "listen address")
	viper.BindPFlag("addr", serveCmd.Flags().Lookup("addr"))
}

func runServe(cmd *cobra.Command, args []string) error {
	db, err := openStore(nil)
	if err != nil {
		return err
	}
	defer db.Close()

	mediaRoot := util.MediaRoot()
	if info, err := os.Stat(mediaRoot); err != nil || !info.IsDir() {
		util.WarnLog("Media root %s not found; serving remote URLs only", mediaRoot)
		mediaRoot = ""
	}

	srv := server.New(&server.Config{
		Store:     db,
		MediaRoot: mediaRoot,
	})

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sig
		util.InfoLog("Shutting down...")
		if err := srv.Shutdown(); err != nil {
			util.ErrorLog("Shutdown failed: %v", err)
		}
	}()

	return srv.Listen(viper.GetString("addr"))
}
