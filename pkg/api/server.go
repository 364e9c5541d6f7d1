// Package api provides the REST API server for w4on2
package api

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"github.com/james-see/w4on2/pkg/bounce"
	"github.com/james-see/w4on2/pkg/converter"
	"github.com/james-see/w4on2/pkg/export"
	"github.com/james-see/w4on2/pkg/format"
	"github.com/james-see/w4on2/pkg/song"
)

// @title w4on2 API
// @version 1.0
// @description API for compiling MIDI songs for the WASM-4 sound chip
// @host localhost:8080
// @BasePath /api/v1

// StartServer starts the API server on the specified port
func StartServer(port int) error {
	return NewRouter().Run(fmt.Sprintf(":%d", port))
}

// NewRouter returns the API's routes.
func NewRouter() *gin.Engine {
	r := gin.Default()

	// CORS middleware
	r.Use(corsMiddleware())

	// Health check
	r.GET("/health", healthCheck)

	// API v1 routes
	v1 := r.Group("/api/v1")
	{
		v1.GET("/health", healthCheck)
		v1.GET("/formats", listFormats)
		v1.POST("/convert", handleConvert)
		v1.POST("/bounce", handleBounce)
		v1.POST("/export", handleExport)
		v1.POST("/inspect", handleInspect)
	}

	// Swagger docs
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	return r
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// healthCheck godoc
// @Summary Health check endpoint
// @Description Returns the health status of the API
// @Tags health
// @Produce json
// @Success 200 {object} map[string]string
// @Router /health [get]
func healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"service": "w4on2",
	})
}

// listFormats godoc
// @Summary List supported formats
// @Description Returns the supported conversions, export languages and config encodings
// @Tags info
// @Produce json
// @Success 200 {object} map[string][]string
// @Router /api/v1/formats [get]
func listFormats(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"conversions": converter.GetSupportedConversions(),
		"languages":   export.Languages(),
		"encodings":   song.Encodings(),
	})
}

// handleConvert godoc
// @Summary Compile MIDI to w4on2
// @Description Upload a song config and a MIDI file and receive the compiled song
// @Tags convert
// @Accept multipart/form-data
// @Produce application/octet-stream
// @Param config formData file true "Song config (.toml, .yaml)"
// @Param midi formData file true "MIDI file"
// @Param stretch query bool false "Round the tempo to a drift free one (default: true)"
// @Param crunch query bool false "Compress into shared patterns (default: true)"
// @Success 200 {file} binary
// @Failure 400 {object} map[string]string
// @Failure 422 {object} map[string]string
// @Router /api/v1/convert [post]
func handleConvert(c *gin.Context) {
	opts := converter.DefaultOptions()
	var err error
	if opts.Stretch, err = boolQuery(c, "stretch", opts.Stretch); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if opts.Crunch, err = boolQuery(c, "crunch", opts.Crunch); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	confData, confHeader, err := readUpload(c, "config")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	midiData, midiHeader, err := readUpload(c, "midi")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	enc, err := song.EncodingFromPath(confHeader.Filename)
	if err != nil {
		enc = song.EncodingTOML
	}
	conf, err := song.Parse(confData, enc)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	conv := converter.New(conf)
	conv.SetOptions(opts)
	result, err := conv.Compile(midiData)
	if err != nil {
		status := http.StatusUnprocessableEntity
		body := gin.H{"error": err.Error()}
		var se *converter.StageError
		if errors.As(err, &se) {
			body["stage"] = string(se.Stage)
			if se.Stage == converter.StageParse {
				status = http.StatusBadRequest
			}
		}
		c.JSON(status, body)
		return
	}

	c.Header("X-W4on2-Patterns", strconv.Itoa(len(result.Song.Patterns)))
	c.Header("X-W4on2-Inaccuracy", strconv.FormatFloat(result.Timing.Inaccuracy, 'f', 3, 64))
	attach(c, midiHeader.Filename, ".w4on2")
	c.Data(http.StatusOK, "application/octet-stream", result.Data)
}

// handleBounce godoc
// @Summary Render w4on2 to WAV
// @Description Upload a compiled song and receive it rendered as a WAV file
// @Tags render
// @Accept multipart/form-data
// @Produce audio/wav
// @Param file formData file true "w4on2 song"
// @Success 200 {file} binary
// @Failure 400 {object} map[string]string
// @Router /api/v1/bounce [post]
func handleBounce(c *gin.Context) {
	data, header, err := readUpload(c, "file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	pcm, err := bounce.BouncePCM(data)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	wav, err := bounce.WAV(pcm)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	attach(c, header.Filename, ".wav")
	c.Data(http.StatusOK, "audio/wav", wav)
}

// handleExport godoc
// @Summary Export w4on2 as source code
// @Description Upload a compiled song and receive it as a source file for a cart
// @Tags render
// @Accept multipart/form-data
// @Produce text/plain
// @Param file formData file true "w4on2 song"
// @Param lang query string false "c, go, rust or zig (default: c)"
// @Param name query string false "Identifier (default: file name)"
// @Success 200 {string} string
// @Failure 400 {object} map[string]string
// @Router /api/v1/export [post]
func handleExport(c *gin.Context) {
	data, header, err := readUpload(c, "file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if _, err := format.Unmarshal(data); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	lang := c.DefaultQuery("lang", "c")
	name := c.DefaultQuery("name", baseName(header.Filename))
	src, err := export.Render(lang, name, data)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	attach(c, header.Filename, export.Extension(lang))
	c.Data(http.StatusOK, "text/plain; charset=utf-8", src)
}

// patternInfo describes one pattern of an inspected song.
type patternInfo struct {
	Offset int      `json:"offset"`
	Bytes  int      `json:"bytes"`
	Events []string `json:"events"`
}

// handleInspect godoc
// @Summary Inspect a w4on2 song
// @Description Upload a compiled song and receive its patterns and tracks
// @Tags info
// @Accept multipart/form-data
// @Produce json
// @Param file formData file true "w4on2 song"
// @Success 200 {object} map[string]interface{}
// @Failure 400 {object} map[string]string
// @Router /api/v1/inspect [post]
func handleInspect(c *gin.Context) {
	data, _, err := readUpload(c, "file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	s, err := format.Unmarshal(data)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	h, err := format.ParseHeader(data)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	patterns := make([]patternInfo, len(s.Patterns))
	for i, p := range s.Patterns {
		start, end := h.PatternBounds(i)
		patterns[i] = patternInfo{Offset: start, Bytes: end - start, Events: make([]string, len(p))}
		for j, ev := range p {
			patterns[i].Events[j] = ev.String()
		}
	}
	c.JSON(http.StatusOK, gin.H{
		"size":     h.Size,
		"patterns": patterns,
		"tracks":   s.Tracks,
	})
}

func readUpload(c *gin.Context, field string) ([]byte, *multipart.FileHeader, error) {
	// Get uploaded file
	file, header, err := c.Request.FormFile(field)
	if err != nil {
		return nil, nil, fmt.Errorf("no %s file uploaded", field)
	}
	defer func() { _ = file.Close() }()

	// Read file content
	data, err := io.ReadAll(file)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read %s file", field)
	}
	return data, header, nil
}

func boolQuery(c *gin.Context, key string, def bool) (bool, error) {
	v, ok := c.GetQuery(key)
	if !ok {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("invalid %s: %q", key, v)
	}
	return b, nil
}

func baseName(filename string) string {
	base := filepath.Base(filename)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

func attach(c *gin.Context, filename, ext string) {
	outputName := baseName(filename)
	if outputName == "" || outputName == "." {
		outputName = "converted"
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%s%s", outputName, ext))
}
