package watch

import (
	"fmt"
	"os"
	"strings"

	yamlv3 "gopkg.in/yaml.v3"

	"github.com/msageha/conductor/internal/model"
	conductoryaml "github.com/msageha/conductor/internal/yaml"
)

// LoadRequest reads a run request file. The file must carry the
// run_request schema header and either an intent or a direct block.
func LoadRequest(path string) (model.RunRequest, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return model.RunRequest{}, fmt.Errorf("read request: %w", err)
	}
	return ParseRequest(content)
}

func ParseRequest(content []byte) (model.RunRequest, error) {
	if err := conductoryaml.CheckHeader(content, conductoryaml.FileTypeRunRequest); err != nil {
		return model.RunRequest{}, err
	}
	var req model.RunRequest
	if err := yamlv3.Unmarshal(content, &req); err != nil {
		return model.RunRequest{}, fmt.Errorf("parse request: %w", err)
	}
	if err := ValidateRequest(req); err != nil {
		return model.RunRequest{}, err
	}
	return req, nil
}

// ValidateRequest checks the fields a request needs before it can be run.
func ValidateRequest(req model.RunRequest) error {
	var errs model.ValidationErrors
	if strings.TrimSpace(req.Intent) == "" && req.Direct == nil {
		errs.Add("intent", "required unless direct is set")
	}
	if req.Direct != nil {
		if req.Direct.Node == "" {
			errs.Add("direct.node", "required")
		}
		if strings.TrimSpace(req.Direct.TaskText) == "" && strings.TrimSpace(req.Intent) == "" {
			errs.Add("direct.task_text", "required when intent is empty")
		}
	}
	if errs.HasErrors() {
		return &errs
	}
	return nil
}
