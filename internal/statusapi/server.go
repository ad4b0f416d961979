// Package statusapi serves the mission status to the ground crew over HTTP.
package statusapi

import (
	"context"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/websocket/v2"

	"github.com/Tysondgn/IITBH-UAV-Flood-Survivor-Prediction/internal/types"
)

type server struct {
	address  string
	deviceID string
	store    *Store
	metrics  http.Handler
}

// New returns the HTTP server as a bus receiver. metrics may be nil.
func New(address string, deviceID string, store *Store, metrics http.Handler) types.MessageHandler {
	return &server{address, deviceID, store, metrics}
}

func (s *server) Run(ctx context.Context, wg *sync.WaitGroup, post types.PostFn) {
	wg.Add(1)
	defer wg.Done()

	app := newApp(s.deviceID, s.store, post, s.metrics)

	go func() {
		<-ctx.Done()
		log.Println("Status API shutting down")
		if err := app.ShutdownWithTimeout(5 * time.Second); err != nil {
			log.Printf("Status API shutdown: %v", err)
		}
	}()

	log.Printf("Status API listening on %s", s.address)
	if err := app.Listen(s.address); err != nil {
		log.Printf("Status API stopped: %v", err)
	}
}

func (s *server) Receive(message types.Message) {
}

func newApp(deviceID string, store *Store, post types.PostFn, metrics http.Handler) *fiber.App {
	app := fiber.New(fiber.Config{DisableStartupMessage: true})

	app.Use(logger.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowHeaders: "Origin, Content-Type, Accept",
		AllowMethods: "GET, POST, OPTIONS",
	}))

	api := app.Group("/api")

	api.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "OK",
			"time":   time.Now().Format(time.RFC3339),
		})
	})

	api.Get("/status", func(c *fiber.Ctx) error {
		return c.JSON(store.Status())
	})

	api.Post("/abort", func(c *fiber.Ctx) error {
		var req types.Abort
		if len(c.Body()) > 0 {
			if err := c.BodyParser(&req); err != nil {
				return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
					"error": "Invalid abort request",
				})
			}
		}
		if req.Reason == "" {
			req.Reason = "status api"
		}

		if store.Status().State.Terminal() {
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{
				"error": "Mission already finished",
			})
		}

		post(types.CreateMessage(types.MessageTypeAbort, "statusapi", deviceID, req))
		return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
			"success": true,
			"reason":  req.Reason,
		})
	})

	if metrics != nil {
		app.Get("/metrics", adaptor.HTTPHandler(metrics))
	}

	app.Use("/websocket", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/websocket/mission", websocket.New(func(conn *websocket.Conn) {
		streamMission(conn, store)
	}))

	return app
}

// streamMission forwards progress messages until the client goes away.
func streamMission(conn *websocket.Conn, store *Store) {
	ch := store.subscribe()
	defer store.unsubscribe(ch)

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	if err := conn.WriteJSON(store.Status()); err != nil {
		return
	}
	for {
		select {
		case <-closed:
			return
		case msg := <-ch:
			if err := conn.WriteJSON(msg); err != nil {
				log.Printf("Websocket client %s dropped: %v", conn.RemoteAddr(), err)
				return
			}
		}
	}
}
