// Command mock-provider is an OpenAI-compatible SSE server used to drive
// internal/provider.HTTPAdaptor in integration tests: query-string knobs
// let a test script inject delays, HTTP failures, and mid-stream
// failures without touching a real vendor.
package main

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"github.com/AliZeynalov/LangDock-LLM-reliability/internal/logging"
)

func main() {
	logging.Init()

	port := os.Getenv("PORT")
	if port == "" {
		port = "8001"
	}

	r := gin.New()
	r.Use(gin.Recovery())

	r.POST("/v1/chat/completions", handleChatCompletion)
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy"})
	})

	log.Infof("mock provider starting on :%s", port)
	if err := r.Run(":" + port); err != nil {
		log.WithError(err).Fatal("mock provider exited")
	}
}

func handleChatCompletion(c *gin.Context) {
	delayStr := c.Query("delay")
	fail := c.Query("fail")
	failChunkStr := c.Query("fail_chunk")

	log.WithFields(log.Fields{
		"delay":      delayStr,
		"fail":       fail,
		"fail_chunk": failChunkStr,
	}).Info("received request")

	if delayStr != "" {
		if ms, err := strconv.Atoi(delayStr); err == nil && ms > 0 {
			time.Sleep(time.Duration(ms) * time.Millisecond)
		}
	}

	if fail != "" {
		handleFailure(c, fail)
		return
	}

	failChunk := -1
	if failChunkStr != "" {
		failChunk, _ = strconv.Atoi(failChunkStr)
	}
	handleStreaming(c, failChunk)
}

func handleFailure(c *gin.Context, failType string) {
	log.Warnf("simulating failure: %s", failType)

	switch failType {
	case "429":
		c.JSON(http.StatusTooManyRequests, gin.H{
			"error": gin.H{"message": "rate limit exceeded", "type": "rate_limit_error", "code": "rate_limit_exceeded"},
		})
	case "timeout":
		log.Info("simulating timeout (sleeping 60s)")
		time.Sleep(60 * time.Second)
	default:
		code, err := strconv.Atoi(failType)
		if err != nil || code < 400 || code >= 600 {
			code = http.StatusInternalServerError
		}
		c.JSON(code, gin.H{
			"error": gin.H{"message": fmt.Sprintf("simulated error %d", code), "type": "simulated_error", "code": fmt.Sprintf("error_%d", code)},
		})
	}
}

func handleStreaming(c *gin.Context, failChunk int) {
	log.WithField("fail_chunk", failChunk).Info("starting streaming response")

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")

	chunks := []string{"Hello", " from", " the", " streaming", " mock", " provider", "!"}

	c.Stream(func(w io.Writer) bool {
		for i, chunk := range chunks {
			chunkNum := i + 1

			if failChunk > 0 && chunkNum == failChunk {
				log.Warnf("simulating failure at chunk %d", chunkNum)
				fmt.Fprintf(w, "data: {\"id\":\"mock-%d\",\"choices\":[{\"delta\":{\"content\":\n\n", chunkNum)
				c.Writer.Flush()
				return false
			}

			data := fmt.Sprintf(`{"id":"mock-%d","object":"chat.completion.chunk","choices":[{"index":0,"delta":{"content":"%s"},"finish_reason":null}]}`, chunkNum, chunk)
			fmt.Fprintf(w, "data: %s\n\n", data)
			c.Writer.Flush()
			time.Sleep(20 * time.Millisecond)
		}

		fmt.Fprint(w, `data: {"id":"mock-final","object":"chat.completion.chunk","choices":[{"index":0,"delta":{},"finish_reason":"stop"}]}`+"\n\n")
		fmt.Fprint(w, "data: [DONE]\n\n")
		c.Writer.Flush()

		log.Info("streaming complete")
		return false
	})
}
