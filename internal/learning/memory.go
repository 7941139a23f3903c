package learning

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/learnloop/tutor-platform/agent-coordinator/internal/bus"
)

// MemoryStore is the in-process Store used by tests
type MemoryStore struct {
	mu          sync.Mutex
	topics      map[string]*Topic
	skills      map[string]*Skill
	notes       []*ResearchNote
	content     map[string]*ContentItem
	questions   map[string][]*Question
	assessments map[string]*AssessmentResult
	progress    map[string]*Progress // keyed by userID + "/" + skillID
	decisions   []*RouteDecision
}

// NewMemoryStore creates an empty in-memory entity store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		topics:      make(map[string]*Topic),
		skills:      make(map[string]*Skill),
		content:     make(map[string]*ContentItem),
		questions:   make(map[string][]*Question),
		assessments: make(map[string]*AssessmentResult),
		progress:    make(map[string]*Progress),
	}
}

func (s *MemoryStore) TopicByName(_ context.Context, name string) (*Topic, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, topic := range s.topics {
		if strings.EqualFold(topic.Name, name) {
			cp := *topic
			return &cp, nil
		}
	}
	return nil, nil
}

func (s *MemoryStore) TopicByID(_ context.Context, id string) (*Topic, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	topic, ok := s.topics[id]
	if !ok {
		return nil, bus.NotFoundError("topic %q not found", id)
	}
	cp := *topic
	return &cp, nil
}

func (s *MemoryStore) InsertTopic(_ context.Context, topic *Topic) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *topic
	s.topics[topic.ID] = &cp
	return nil
}

func (s *MemoryStore) SkillsByTopic(_ context.Context, topicID string) ([]*Skill, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var skills []*Skill
	for _, skill := range s.skills {
		if skill.TopicID == topicID {
			cp := *skill
			skills = append(skills, &cp)
		}
	}
	sort.Slice(skills, func(i, j int) bool {
		if skills[i].Position != skills[j].Position {
			return skills[i].Position < skills[j].Position
		}
		return skills[i].CreatedAt.Before(skills[j].CreatedAt)
	})
	return skills, nil
}

func (s *MemoryStore) InsertSkill(_ context.Context, skill *Skill) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *skill
	s.skills[skill.ID] = &cp
	return nil
}

func (s *MemoryStore) LatestResearchNote(_ context.Context, topic string) (*ResearchNote, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var latest *ResearchNote
	for _, note := range s.notes {
		if !strings.EqualFold(note.Topic, topic) {
			continue
		}
		if latest == nil || note.CreatedAt.After(latest.CreatedAt) {
			latest = note
		}
	}
	if latest == nil {
		return nil, nil
	}
	cp := *latest
	return &cp, nil
}

func (s *MemoryStore) InsertResearchNote(_ context.Context, note *ResearchNote) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *note
	s.notes = append(s.notes, &cp)
	return nil
}

func (s *MemoryStore) ContentItemByID(_ context.Context, id string) (*ContentItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.content[id]
	if !ok {
		return nil, bus.NotFoundError("content item %q not found", id)
	}
	cp := *item
	return &cp, nil
}

func (s *MemoryStore) ContentForSkillAtDepth(_ context.Context, skillID string, depth Depth) (*ContentItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var match *ContentItem
	for _, item := range s.content {
		if item.SkillID != skillID || item.Depth != depth {
			continue
		}
		if match == nil || item.CreatedAt.Before(match.CreatedAt) {
			match = item
		}
	}
	if match == nil {
		return nil, nil
	}
	cp := *match
	return &cp, nil
}

func (s *MemoryStore) EarliestBeginnerContent(_ context.Context, topicID string) (*ContentItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var match *ContentItem
	for _, item := range s.content {
		if item.TopicID != topicID || item.Depth != DepthBeginner {
			continue
		}
		if match == nil || item.CreatedAt.Before(match.CreatedAt) {
			match = item
		}
	}
	if match == nil {
		return nil, nil
	}
	cp := *match
	return &cp, nil
}

func (s *MemoryStore) InsertContentItem(_ context.Context, item *ContentItem, questions []*Question) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *item
	s.content[item.ID] = &cp
	for _, q := range questions {
		qc := *q
		s.questions[item.ID] = append(s.questions[item.ID], &qc)
	}
	return nil
}

func (s *MemoryStore) QuestionsByContentItem(_ context.Context, contentItemID string) ([]*Question, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var questions []*Question
	for _, q := range s.questions[contentItemID] {
		cp := *q
		questions = append(questions, &cp)
	}
	sort.Slice(questions, func(i, j int) bool {
		return questions[i].Position < questions[j].Position
	})
	return questions, nil
}

func (s *MemoryStore) InsertAssessmentResult(_ context.Context, result *AssessmentResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *result
	s.assessments[result.ID] = &cp
	return nil
}

func (s *MemoryStore) AssessmentResultByID(_ context.Context, id string) (*AssessmentResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	result, ok := s.assessments[id]
	if !ok {
		return nil, bus.NotFoundError("assessment result %q not found", id)
	}
	cp := *result
	return &cp, nil
}

func (s *MemoryStore) ProgressForUserTopic(_ context.Context, userID, topicID string) ([]*Progress, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var progress []*Progress
	for _, p := range s.progress {
		if p.UserID == userID && p.TopicID == topicID {
			cp := *p
			progress = append(progress, &cp)
		}
	}
	sort.Slice(progress, func(i, j int) bool {
		return progress[i].CreatedAt.Before(progress[j].CreatedAt)
	})
	return progress, nil
}

func (s *MemoryStore) UpsertProgress(_ context.Context, progress *Progress) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := progress.UserID + "/" + progress.SkillID
	if existing, ok := s.progress[key]; ok {
		existing.Status = progress.Status
		existing.CurrentDepth = progress.CurrentDepth
		existing.UpdatedAt = progress.UpdatedAt
		return nil
	}
	cp := *progress
	s.progress[key] = &cp
	return nil
}

func (s *MemoryStore) InsertRouteDecision(_ context.Context, decision *RouteDecision) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *decision
	s.decisions = append(s.decisions, &cp)
	return nil
}

func (s *MemoryStore) RouteDecisionsByUser(_ context.Context, userID string, limit int) ([]*RouteDecision, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var decisions []*RouteDecision
	for i := len(s.decisions) - 1; i >= 0 && len(decisions) < limit; i-- {
		if s.decisions[i].UserID == userID {
			cp := *s.decisions[i]
			decisions = append(decisions, &cp)
		}
	}
	return decisions, nil
}
