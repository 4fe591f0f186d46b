package generation

import (
	"context"
	"log/slog"
	"strings"

	"prodir/internal/profile/models"
	"prodir/pkg/domain"
	dErrors "prodir/pkg/domain-errors"
	"prodir/pkg/requestcontext"
)

const maxPromptLength = 4000

// DraftCreator stores new pending profiles.
type DraftCreator interface {
	Create(ctx context.Context, p *models.Profile) error
}

// Service turns a prompt into pending drafts.
type Service struct {
	generator Generator
	drafts    DraftCreator
	logger    *slog.Logger
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func New(generator Generator, drafts DraftCreator, opts ...Option) (*Service, error) {
	if generator == nil {
		return nil, dErrors.New(dErrors.CodeInternal, "generator is required")
	}
	if drafts == nil {
		return nil, dErrors.New(dErrors.CodeInternal, "draft creator is required")
	}
	s := &Service{generator: generator, drafts: drafts}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s, nil
}

// Request describes one generation call. Region and Category, when set,
// are stamped onto every resulting draft.
type Request struct {
	Prompt   string
	Region   string
	Category string
}

// Generate asks the model for candidates and stores each as a pending
// draft. Drafts already stored before a failing Create are kept and
// returned alongside the error.
func (s *Service) Generate(ctx context.Context, role domain.Role, req Request) ([]*models.Profile, error) {
	if !role.IsModerator() {
		return nil, dErrors.New(dErrors.CodeForbidden, "only moderators may generate profiles")
	}
	prompt := strings.TrimSpace(req.Prompt)
	if prompt == "" {
		return nil, dErrors.New(dErrors.CodeInvalidArgument, "prompt is required")
	}
	if len([]rune(prompt)) > maxPromptLength {
		return nil, dErrors.New(dErrors.CodeInvalidArgument, "prompt is too long")
	}

	candidates, err := s.generator.Generate(ctx, prompt)
	if err != nil {
		if dErrors.CodeOf(err) == dErrors.CodeInternal {
			err = dErrors.Wrap(err, dErrors.CodeUpstream, "generation failed")
		}
		return nil, err
	}

	now := requestcontext.Now(ctx)
	created := make([]*models.Profile, 0, len(candidates))
	for _, c := range candidates {
		// Region, category and country are request metadata; a candidate
		// needs content of its own to become a draft.
		if len(c.Fields) == 0 {
			s.logger.WarnContext(ctx, "skipping generated candidate without fields",
				"country", c.Country,
				"request_id", requestcontext.RequestID(ctx),
			)
			continue
		}
		p, err := models.NewProfile(domain.NewProfileID(), draftFields(c, req), prompt, now)
		if err != nil {
			s.logger.WarnContext(ctx, "skipping unusable generated candidate",
				"error", err,
				"request_id", requestcontext.RequestID(ctx),
			)
			continue
		}
		if err := s.drafts.Create(ctx, p); err != nil {
			return created, err
		}
		created = append(created, p)
	}

	s.logger.InfoContext(ctx, "generated draft profiles",
		"candidates", len(candidates),
		"created", len(created),
		"request_id", requestcontext.RequestID(ctx),
	)
	return created, nil
}

func draftFields(c Candidate, req Request) models.Fields {
	fields := make(models.Fields, len(c.Fields)+3)
	for k, v := range c.Fields {
		fields[k] = normalizeValue(v)
	}
	if c.Country != "" {
		if _, ok := fields["location"]; !ok {
			fields["location"] = c.Country
		}
	}
	if r := strings.TrimSpace(req.Region); r != "" {
		fields[models.FieldRegion] = r
	}
	if cat := strings.TrimSpace(req.Category); cat != "" {
		fields[models.FieldCategory] = cat
	}
	return fields
}

// normalizeValue turns decoded JSON string arrays into []string so drafts
// match edited records.
func normalizeValue(v any) any {
	list, ok := v.([]any)
	if !ok {
		return v
	}
	out := make([]string, 0, len(list))
	for _, item := range list {
		s, ok := item.(string)
		if !ok {
			return v
		}
		out = append(out, s)
	}
	return out
}
