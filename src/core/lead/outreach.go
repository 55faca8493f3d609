package lead

import (
	"context"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/textsplitter"

	"leadgrid/src/infrastructure/integrations/llm"
	"leadgrid/src/storage/postgres/businessctrl"
)

const (
	outreachSystemPrompt = "You write short, personal cold outreach emails for a small agency. " +
		"Use the business facts provided. Two paragraphs maximum, no placeholders, no subject line."

	// Website text is chunked and only the leading chunks are used, keeping
	// the prompt within a small local model's context window.
	outreachChunkSize    = 800
	outreachChunkOverlap = 100
	outreachMaxChunks    = 3
)

// OutreachService generates outreach copy for a lead from its scraped and
// enriched profile and stores it on the business row.
type OutreachService struct {
	businesses *businessctrl.BusinessService
	llmClient  *llm.Client
	model      string
}

func NewOutreachService(businesses *businessctrl.BusinessService, llmClient *llm.Client, model string) *OutreachService {
	return &OutreachService{
		businesses: businesses,
		llmClient:  llmClient,
		model:      model,
	}
}

// Generate produces an outreach message for the business and persists it.
func (s *OutreachService) Generate(ctx context.Context, businessID int64) (string, error) {
	business, err := s.businesses.GetByID(ctx, businessID)
	if err != nil {
		return "", err
	}
	if business == nil {
		return "", ErrBusinessNotFound
	}

	prompt, err := s.buildPrompt(business)
	if err != nil {
		return "", err
	}

	message, err := s.llmClient.Generate(ctx, s.model, outreachSystemPrompt, prompt, nil)
	if err != nil {
		return "", fmt.Errorf("failed to generate outreach message: %w", err)
	}
	message = strings.TrimSpace(message)

	if err := s.businesses.Update(ctx, businessID, map[string]interface{}{
		"outreach_message": message,
	}); err != nil {
		return "", err
	}

	return message, nil
}

func (s *OutreachService) buildPrompt(business *businessctrl.Business) (string, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "Business: %s\n", business.Name)
	if business.Category != "" {
		fmt.Fprintf(&b, "Category: %s\n", business.Category)
	}
	if business.Address != "" {
		fmt.Fprintf(&b, "Location: %s\n", business.Address)
	}
	if business.Website != "" {
		fmt.Fprintf(&b, "Website: %s\n", business.Website)
	}

	if business.SiteText != "" {
		splitter := textsplitter.NewRecursiveCharacter(
			textsplitter.WithChunkSize(outreachChunkSize),
			textsplitter.WithChunkOverlap(outreachChunkOverlap),
		)
		chunks, err := splitter.SplitText(business.SiteText)
		if err != nil {
			return "", fmt.Errorf("failed to split site text: %w", err)
		}
		if len(chunks) > outreachMaxChunks {
			chunks = chunks[:outreachMaxChunks]
		}
		b.WriteString("\nWebsite excerpts:\n")
		for _, chunk := range chunks {
			b.WriteString(chunk)
			b.WriteString("\n---\n")
		}
	}

	b.WriteString("\nWrite the outreach email now.")
	return b.String(), nil
}
