package bot

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/H3nryK/Darely/internal/darely"
	apperrors "github.com/H3nryK/Darely/internal/platform/errors"
)

// dispatch routes one verified command to the game service and renders the
// reply text.
func (s *Server) dispatch(ctx context.Context, initiator darely.Principal, command CommandSpec) (string, error) {
	switch command.Name {
	case "help":
		return s.helpText(ctx, initiator)

	case "register":
		if _, err := s.service.Register(ctx, initiator); err != nil {
			return "", err
		}
		return "🎉 Welcome to Darely Bot! You're registered. Use /dare to get your first challenge!", nil

	case "profile":
		profile, err := s.service.Profile(ctx, initiator)
		if err != nil {
			return "", err
		}
		reply := fmt.Sprintf("📊 Your stats:\nCurrent streak: %d\nLongest streak: %d\nDares completed: %d",
			profile.CurrentStreak, profile.LongestStreak, profile.DaresCompleted)
		if profile.ActiveDareID != nil {
			reply += fmt.Sprintf("\nActive dare: %d", *profile.ActiveDareID)
		}
		return reply, nil

	case "dare":
		var difficulty *darely.Difficulty
		if raw := command.Arg("difficulty"); raw != "" {
			tier, err := darely.ParseDifficulty(raw)
			if err != nil {
				return "", err
			}
			difficulty = &tier
		}
		assignment, err := s.service.RequestDare(ctx, initiator, difficulty)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("🔥 Your new %s dare (ID: %d):\n\n%s\n\nUse /submit <proof> when completed!",
			assignment.Dare.Difficulty, assignment.Dare.ID, assignment.Dare.Text), nil

	case "submit":
		result, err := s.service.SubmitDare(ctx, initiator, command.Arg("proof"))
		if err != nil {
			return "", err
		}
		reply := fmt.Sprintf("✅ Dare %d submitted! Your current streak is %d.", result.DareID, result.CurrentStreak)
		if result.RedeemEligible {
			reply += "\n🏆 Streak goal reached! Use /redeem to claim a reward task!"
		}
		reply += "\nUse /dare for your next challenge!"
		return reply, nil

	case "redeem":
		result, err := s.service.Redeem(ctx, initiator)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("🎉 Redeemed! Your streak of %d grants you this task (ID: %d):\n\n%s\n\nYour streak has been reset. Good luck!",
			result.PreviousStreak, result.Task.ID, result.Task.Description), nil

	case "leaderboard":
		return s.leaderboardText(ctx)

	case "add_dare":
		difficulty, err := darely.ParseDifficulty(command.Arg("difficulty"))
		if err != nil {
			return "", err
		}
		dare, err := s.service.AddDare(ctx, initiator, difficulty, command.Arg("text"))
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("✅ New dare added with ID %d.", dare.ID), nil

	case "add_task":
		required, err := strconv.ParseUint(command.Arg("required_streak"), 10, 32)
		if err != nil {
			return "", apperrors.New(apperrors.CodeInvalidArgument, "required streak must be a number")
		}
		task, err := s.service.AddTask(ctx, initiator, uint32(required), command.Arg("description"))
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("✅ New redemption task added with ID %d.", task.ID), nil

	case "add_admin":
		target, err := darely.ParsePrincipal(command.Arg("principal"))
		if err != nil {
			return "", err
		}
		if err := s.service.AddAdmin(ctx, initiator, target); err != nil {
			return "", err
		}
		return fmt.Sprintf("✅ %s is now an admin.", target), nil

	case "remove_admin":
		target, err := darely.ParsePrincipal(command.Arg("principal"))
		if err != nil {
			return "", err
		}
		if err := s.service.RemoveAdmin(ctx, initiator, target); err != nil {
			return "", err
		}
		return fmt.Sprintf("✅ %s is no longer an admin.", target), nil

	default:
		return "", apperrors.WithMetadata(apperrors.CodeCommandUnknown,
			fmt.Sprintf("unknown command %q", command.Name),
			map[string]string{"command": command.Name})
	}
}

func (s *Server) helpText(ctx context.Context, initiator darely.Principal) (string, error) {
	isAdmin, err := s.service.IsAdmin(ctx, initiator)
	if err != nil {
		return "", err
	}

	var user, admin strings.Builder
	user.WriteString("** Darely Bot Commands **\n\n**User Commands:**\n")
	admin.WriteString("\n**Admin Commands:**\n")
	for _, def := range BotDefinition().Commands {
		line := fmt.Sprintf("- /%s: %s\n", def.Name, def.Description)
		if def.AdminOnly {
			admin.WriteString(line)
		} else {
			user.WriteString(line)
		}
	}
	if isAdmin {
		user.WriteString(admin.String())
	}
	return user.String(), nil
}

func (s *Server) leaderboardText(ctx context.Context) (string, error) {
	entries, err := s.service.Leaderboard(ctx, 0)
	if err != nil {
		return "", err
	}
	var board strings.Builder
	board.WriteString("**🏆 Darely Bot Leaderboard (Longest Streaks) 🏆**\n\n")
	if len(entries) == 0 {
		board.WriteString("No players yet! Use /register to start.")
		return board.String(), nil
	}
	for i, entry := range entries {
		board.WriteString(fmt.Sprintf("%d. %s - Longest: %d, Current: %d\n",
			i+1, entry.Principal.Short(), entry.LongestStreak, entry.CurrentStreak))
	}
	return board.String(), nil
}
