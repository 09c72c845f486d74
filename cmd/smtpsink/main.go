package main

import (
	"bufio"
	"fmt"
	"math/rand"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// ReceivedMessage is one message accepted by the sink.
type ReceivedMessage struct {
	ID         string    `json:"id"`
	From       string    `json:"from"`
	To         []string  `json:"to"`
	Data       string    `json:"data"`
	ReceivedAt time.Time `json:"received_at"`
}

// Sink is a development SMTP server that stores everything it accepts in
// memory and can inject rejections to exercise the pipeline's failure
// classification.
type Sink struct {
	mu            sync.Mutex
	messages      []ReceivedMessage
	rejectRate    float64
	rejectCode    int
	greetDelay    time.Duration
	maxStored     int
	rng           *rand.Rand
	totalAccepted int64
	totalRejected int64
}

func NewSink(rejectRate float64, rejectCode int, maxStored int) *Sink {
	return &Sink{
		rejectRate: rejectRate,
		rejectCode: rejectCode,
		maxStored:  maxStored,
		rng:        rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (s *Sink) shouldReject() (bool, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.rng.Float64() < s.rejectRate {
		return true, s.rejectCode
	}
	return false, 0
}

func (s *Sink) store(msg ReceivedMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.totalAccepted++
	s.messages = append(s.messages, msg)
	if s.maxStored > 0 && len(s.messages) > s.maxStored {
		s.messages = s.messages[len(s.messages)-s.maxStored:]
	}
}

func (s *Sink) snapshot() []ReceivedMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]ReceivedMessage, len(s.messages))
	copy(out, s.messages)
	return out
}

func (s *Sink) clear() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(s.messages)
	s.messages = nil
	return n
}

// Serve accepts SMTP connections until the listener closes.
func (s *Sink) Serve(ln net.Listener) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		go s.handle(conn)
	}
}

func (s *Sink) handle(conn net.Conn) {
	defer conn.Close()
	r := bufio.NewReader(conn)
	w := bufio.NewWriter(conn)

	reply := func(line string) {
		w.WriteString(line + "\r\n")
		w.Flush()
	}

	if s.greetDelay > 0 {
		time.Sleep(s.greetDelay)
	}
	reply("220 smtpsink ready")

	var from string
	var rcpts []string

	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return
		}
		line = strings.TrimRight(line, "\r\n")
		verb := strings.ToUpper(line)

		switch {
		case strings.HasPrefix(verb, "EHLO"), strings.HasPrefix(verb, "HELO"):
			reply("250-smtpsink")
			reply("250 8BITMIME")
		case strings.HasPrefix(verb, "MAIL FROM:"):
			from = strings.TrimPrefix(line[len("MAIL FROM:"):], " ")
			reply("250 OK")
		case strings.HasPrefix(verb, "RCPT TO:"):
			if reject, code := s.shouldReject(); reject {
				s.mu.Lock()
				s.totalRejected++
				s.mu.Unlock()
				log.Warn().Int("code", code).Str("rcpt", line).Msg("injected rejection")
				reply(fmt.Sprintf("%d injected failure", code))
				continue
			}
			rcpts = append(rcpts, strings.TrimPrefix(line[len("RCPT TO:"):], " "))
			reply("250 OK")
		case verb == "DATA":
			if len(rcpts) == 0 {
				reply("503 no valid recipients")
				continue
			}
			reply("354 go ahead")
			var data strings.Builder
			for {
				dl, err := r.ReadString('\n')
				if err != nil {
					return
				}
				if strings.TrimRight(dl, "\r\n") == "." {
					break
				}
				data.WriteString(dl)
			}
			msg := ReceivedMessage{
				ID:         uuid.NewString(),
				From:       from,
				To:         rcpts,
				Data:       data.String(),
				ReceivedAt: time.Now(),
			}
			s.store(msg)
			log.Info().Str("id", msg.ID).Str("from", from).Int("rcpts", len(rcpts)).Msg("message accepted")
			from, rcpts = "", nil
			reply("250 OK queued")
		case verb == "RSET":
			from, rcpts = "", nil
			reply("250 OK")
		case verb == "NOOP":
			reply("250 OK")
		case verb == "QUIT":
			reply("221 bye")
			return
		default:
			reply("502 command not implemented")
		}
	}
}

// Handler exposes the sink's state over HTTP for tests and manual poking.
type Handler struct {
	sink *Sink
}

func NewHandler(sink *Sink) *Handler {
	return &Handler{sink: sink}
}

func (h *Handler) ListMessages(c *gin.Context) {
	msgs := h.sink.snapshot()
	c.JSON(http.StatusOK, gin.H{"count": len(msgs), "messages": msgs})
}

func (h *Handler) ClearMessages(c *gin.Context) {
	n := h.sink.clear()
	c.JSON(http.StatusOK, gin.H{"cleared": n})
}

func (h *Handler) HealthCheck(c *gin.Context) {
	h.sink.mu.Lock()
	accepted, rejected := h.sink.totalAccepted, h.sink.totalRejected
	h.sink.mu.Unlock()

	c.JSON(http.StatusOK, gin.H{
		"status":   "healthy",
		"accepted": accepted,
		"rejected": rejected,
	})
}

// UpdateConfig changes the failure injection at runtime.
func (h *Handler) UpdateConfig(c *gin.Context) {
	var config struct {
		RejectRate *float64 `json:"reject_rate"`
		RejectCode *int     `json:"reject_code"`
	}

	if err := c.ShouldBindJSON(&config); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request",
			"details": err.Error(),
		})
		return
	}

	h.sink.mu.Lock()
	if config.RejectRate != nil && *config.RejectRate >= 0 && *config.RejectRate <= 1.0 {
		h.sink.rejectRate = *config.RejectRate
	}
	if config.RejectCode != nil && *config.RejectCode >= 400 && *config.RejectCode < 600 {
		h.sink.rejectCode = *config.RejectCode
	}
	rate, code := h.sink.rejectRate, h.sink.rejectCode
	h.sink.mu.Unlock()

	log.Info().Float64("reject_rate", rate).Int("reject_code", code).Msg("Updated sink config")
	c.JSON(http.StatusOK, gin.H{"reject_rate": rate, "reject_code": code})
}

// SetupRouter configures all routes
func SetupRouter(handler *Handler) *gin.Engine {
	router := gin.Default()

	router.Use(func(c *gin.Context) {
		start := time.Now()
		c.Next()
		duration := time.Since(start)

		log.Info().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("duration", duration).
			Msg("Request processed")
	})

	v1 := router.Group("/api/v1")
	{
		v1.GET("/messages", handler.ListMessages)
		v1.DELETE("/messages", handler.ClearMessages)
		v1.PUT("/config", handler.UpdateConfig)
		v1.GET("/health", handler.HealthCheck)
	}

	router.GET("/health", handler.HealthCheck)

	return router
}

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	smtpAddr := getEnv("SMTP_ADDR", ":2525")
	httpPort := getEnv("PORT", "8082")
	rejectRate := getEnvFloat("REJECT_RATE", 0)
	rejectCode := int(getEnvFloat("REJECT_CODE", 451))
	maxStored := int(getEnvFloat("MAX_STORED", 10000))

	sink := NewSink(rejectRate, rejectCode, maxStored)

	ln, err := net.Listen("tcp", smtpAddr)
	if err != nil {
		log.Fatal().Err(err).Str("addr", smtpAddr).Msg("failed to listen for smtp")
	}

	go sink.Serve(ln)
	log.Info().Str("addr", smtpAddr).Float64("reject_rate", rejectRate).Msg("SMTP sink listening")

	router := SetupRouter(NewHandler(sink))
	go func() {
		if err := router.Run(":" + httpPort); err != nil {
			log.Fatal().Err(err).Msg("http server stopped")
		}
	}()
	log.Info().Str("port", httpPort).Msg("inspection API listening")

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	<-c

	ln.Close()
	log.Info().Msg("SMTP sink stopped")
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}
