package store

import (
	"context"
	"fmt"
	"io"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/platinummonkey/tracker/pkg/roles"
)

// Seed is a YAML fixture for the memory store
type Seed struct {
	Users []struct {
		ID        int64  `yaml:"id"`
		Email     string `yaml:"email"`
		FirstName string `yaml:"first_name"`
		LastName  string `yaml:"last_name"`
		Role      string `yaml:"role"`
		Deleted   bool   `yaml:"deleted"`
	} `yaml:"users"`

	Projects []struct {
		ID          int64  `yaml:"id"`
		Title       string `yaml:"title"`
		Description string `yaml:"description"`
	} `yaml:"projects"`

	Memberships []struct {
		ProjectID int64  `yaml:"project_id"`
		UserID    int64  `yaml:"user_id"`
		Role      string `yaml:"role"`
	} `yaml:"memberships"`

	Issues []struct {
		ID         int64  `yaml:"id"`
		ProjectID  int64  `yaml:"project_id"`
		AssigneeID *int64 `yaml:"assignee_id"`
		Title      string `yaml:"title"`
	} `yaml:"issues"`

	WorkLogs []struct {
		ID        int64         `yaml:"id"`
		IssueID   int64         `yaml:"issue_id"`
		UserID    int64         `yaml:"user_id"`
		Duration  time.Duration `yaml:"duration"`
		StartDate time.Time     `yaml:"start_date"`
		EndDate   time.Time     `yaml:"end_date"`
	} `yaml:"worklogs"`
}

// LoadSeed parses a YAML fixture and applies it to s. Users are flagged
// deleted after memberships are created so their history rows exist.
func LoadSeed(ctx context.Context, s *MemoryStore, r io.Reader) error {
	var seed Seed
	if err := yaml.NewDecoder(r).Decode(&seed); err != nil {
		return fmt.Errorf("failed to parse seed: %w", err)
	}

	for _, u := range seed.Users {
		role, err := roles.Parse(u.Role)
		if err != nil {
			return fmt.Errorf("user %d: %w", u.ID, err)
		}
		if role == roles.None {
			role = roles.User
		}
		if err := s.CreateUser(ctx, &User{
			ID:        u.ID,
			Email:     u.Email,
			FirstName: u.FirstName,
			LastName:  u.LastName,
			Role:      role,
		}); err != nil {
			return err
		}
	}

	for _, p := range seed.Projects {
		if err := s.CreateProject(ctx, &Project{ID: p.ID, Title: p.Title, Description: p.Description}); err != nil {
			return err
		}
	}

	for _, m := range seed.Memberships {
		role, err := roles.Parse(m.Role)
		if err != nil {
			return fmt.Errorf("membership %d/%d: %w", m.ProjectID, m.UserID, err)
		}

		switch role {
		case roles.ProjectManager:
			state, err := s.GetManager(ctx, m.ProjectID)
			if err != nil {
				return fmt.Errorf("membership %d/%d: %w", m.ProjectID, m.UserID, err)
			}
			if state.ManagerID != nil {
				return fmt.Errorf("project %d has more than one manager in seed", m.ProjectID)
			}
			if _, err := s.ReplaceManager(ctx, m.ProjectID, state.Version, m.UserID); err != nil {
				return fmt.Errorf("membership %d/%d: %w", m.ProjectID, m.UserID, err)
			}
		default:
			if err := s.SetMemberRole(ctx, m.ProjectID, m.UserID, role); err != nil {
				return fmt.Errorf("membership %d/%d: %w", m.ProjectID, m.UserID, err)
			}
		}
	}

	for _, i := range seed.Issues {
		if err := s.CreateIssue(ctx, &Issue{ID: i.ID, ProjectID: i.ProjectID, AssigneeID: i.AssigneeID, Title: i.Title}); err != nil {
			return err
		}
	}

	for _, w := range seed.WorkLogs {
		if err := s.CreateWorkLog(ctx, &WorkLog{
			ID:        w.ID,
			IssueID:   w.IssueID,
			UserID:    w.UserID,
			Duration:  w.Duration,
			StartDate: w.StartDate,
			EndDate:   w.EndDate,
		}); err != nil {
			return err
		}
	}

	for _, u := range seed.Users {
		if u.Deleted {
			if _, err := s.SetUserDeleted(ctx, u.ID); err != nil {
				return err
			}
		}
	}

	return nil
}
