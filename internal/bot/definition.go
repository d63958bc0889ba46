package bot

// Definition is the schema document served at the bot root so a chat
// platform can discover the available commands.
type Definition struct {
	Name        string              `json:"name"`
	Description string              `json:"description"`
	Commands    []CommandDefinition `json:"commands"`
}

// CommandDefinition describes one command and its parameters.
type CommandDefinition struct {
	Name        string            `json:"name"`
	Description string            `json:"description"`
	AdminOnly   bool              `json:"admin_only,omitempty"`
	Params      []ParamDefinition `json:"params,omitempty"`
}

// ParamDefinition describes one command parameter.
type ParamDefinition struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Required    bool     `json:"required"`
	Choices     []string `json:"choices,omitempty"`
}

var difficultyChoices = []string{"easy", "medium", "hard"}

// BotDefinition returns the command schema served to the chat platform.
func BotDefinition() Definition {
	return Definition{
		Name:        "Darely Bot",
		Description: "Dare challenges, streaks and rewards for your community.",
		Commands: []CommandDefinition{
			{
				Name:        "help",
				Description: "Show available commands.",
			},
			{
				Name:        "register",
				Description: "Register yourself to start playing dares!",
			},
			{
				Name:        "profile",
				Description: "Show your streaks and completed dares.",
			},
			{
				Name:        "dare",
				Description: "Get a new dare challenge.",
				Params: []ParamDefinition{
					{Name: "difficulty", Description: "Optional: easy, medium, or hard", Choices: difficultyChoices},
				},
			},
			{
				Name:        "submit",
				Description: "Submit proof of completing your current dare.",
				Params: []ParamDefinition{
					{Name: "proof", Description: "Proof of completion (text, image link...).", Required: true},
				},
			},
			{
				Name:        "redeem",
				Description: "Redeem your streak for a reward task (if eligible).",
			},
			{
				Name:        "leaderboard",
				Description: "View the top players by longest streak.",
			},
			{
				Name:        "add_dare",
				Description: "ADMIN: Add a new dare.",
				AdminOnly:   true,
				Params: []ParamDefinition{
					{Name: "difficulty", Description: "easy, medium, or hard", Required: true, Choices: difficultyChoices},
					{Name: "text", Description: "The text of the dare", Required: true},
				},
			},
			{
				Name:        "add_task",
				Description: "ADMIN: Add a new redemption task.",
				AdminOnly:   true,
				Params: []ParamDefinition{
					{Name: "required_streak", Description: "Streak needed to redeem", Required: true},
					{Name: "description", Description: "The description of the task", Required: true},
				},
			},
			{
				Name:        "add_admin",
				Description: "ADMIN: Grant admin rights to a principal.",
				AdminOnly:   true,
				Params: []ParamDefinition{
					{Name: "principal", Description: "Principal to promote", Required: true},
				},
			},
			{
				Name:        "remove_admin",
				Description: "ADMIN: Revoke admin rights from a principal.",
				AdminOnly:   true,
				Params: []ParamDefinition{
					{Name: "principal", Description: "Principal to demote", Required: true},
				},
			},
		},
	}
}
