package detect

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/Ezrahel/auto-deploy-hng/internal/exitcode"
	"github.com/Ezrahel/auto-deploy-hng/internal/logger"
)

// Mode is how the project gets built and started on the target host.
type Mode string

const (
	SingleImage  Mode = "single-image"
	ComposeStack Mode = "compose-stack"
)

// Descriptor is the detected build method of a working copy.
type Descriptor struct {
	Mode Mode
	// File is the descriptor filename relative to the working copy.
	File string
	// Services lists compose service names; empty for single-image.
	Services []string
}

var composeSpellings = []string{"docker-compose.yml", "docker-compose.yaml"}

// Inspect determines the build mode of the working copy at dir. A Dockerfile
// wins over a compose manifest; absence of both is fatal, since the tool
// cannot guess a build method.
func Inspect(dir string, log *logger.Logger) (*Descriptor, error) {
	dlog := log.WithPrefix("detect")

	if fileExists(filepath.Join(dir, "Dockerfile")) {
		dlog.Success("Found Dockerfile, deploying as a single image")
		return &Descriptor{Mode: SingleImage, File: "Dockerfile"}, nil
	}

	for _, name := range composeSpellings {
		path := filepath.Join(dir, name)
		if !fileExists(path) {
			continue
		}
		services, err := composeServices(path)
		if err != nil {
			return nil, exitcode.Fatal(exitcode.NoBuildDescriptor, err,
				"%s is present but unusable", name)
		}
		dlog.Success("Found %s with services: %v", name, services)
		return &Descriptor{Mode: ComposeStack, File: name, Services: services}, nil
	}

	return nil, exitcode.Fatal(exitcode.NoBuildDescriptor, nil,
		"no Dockerfile or docker-compose.yml/.yaml in %s; add one and re-run", dir)
}

// composeServices parses the manifest and returns its service names.
func composeServices(path string) ([]string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var manifest struct {
		Services map[string]yaml.Node `yaml:"services"`
	}
	if err := yaml.Unmarshal(raw, &manifest); err != nil {
		return nil, fmt.Errorf("parse compose manifest: %w", err)
	}
	if len(manifest.Services) == 0 {
		return nil, fmt.Errorf("compose manifest declares no services")
	}

	names := make([]string, 0, len(manifest.Services))
	for name := range manifest.Services {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
