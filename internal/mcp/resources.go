package mcp

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// MaxResourceSize is the largest file served as a resource.
const MaxResourceSize = 1024 * 1024

// RegisterResources exposes each indexed file as a file:// resource.
// paths are relative to the index root.
func (s *Server) RegisterResources(paths []string) error {
	if s.rootPath == "" {
		return fmt.Errorf("root path must be set before registering resources")
	}
	for _, p := range paths {
		s.mcp.AddResource(&mcp.Resource{
			Name:     filepath.Base(p),
			URI:      resourceURI(p),
			MIMEType: mimeTypeFor(p),
		}, s.makeFileHandler(p))
	}
	s.logger.Info("registered resources", "count", len(paths))
	return nil
}

func resourceURI(rel string) string {
	return "file://" + filepath.ToSlash(rel)
}

func (s *Server) makeFileHandler(path string) mcp.ResourceHandler {
	return func(ctx context.Context, _ *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
		return s.readResource(path)
	}
}

func (s *Server) readResource(rel string) (*mcp.ReadResourceResult, error) {
	if !isValidPath(rel) {
		return nil, NewInvalidParamsError(fmt.Sprintf("invalid path: %s", rel))
	}

	full := filepath.Join(s.rootPath, rel)
	info, err := os.Stat(full)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &MCPError{Code: ErrCodeFileNotFound, Message: fmt.Sprintf("file not found: %s", rel)}
		}
		return nil, MapError(err)
	}
	if info.Size() > MaxResourceSize {
		return nil, &MCPError{
			Code:    ErrCodeFileTooLarge,
			Message: fmt.Sprintf("file too large: %d bytes (max %d)", info.Size(), MaxResourceSize),
		}
	}

	content, err := os.ReadFile(full)
	if err != nil {
		return nil, MapError(err)
	}
	return &mcp.ReadResourceResult{
		Contents: []*mcp.ResourceContents{{
			URI:      resourceURI(rel),
			MIMEType: mimeTypeFor(rel),
			Text:     string(content),
		}},
	}, nil
}

// isValidPath rejects empty, absolute and escaping paths.
func isValidPath(path string) bool {
	if path == "" || filepath.IsAbs(path) {
		return false
	}
	if len(path) >= 2 && path[1] == ':' {
		return false
	}
	for _, part := range strings.Split(filepath.ToSlash(filepath.Clean(path)), "/") {
		if part == ".." {
			return false
		}
	}
	return true
}
