package bot

import (
	"context"
	"fmt"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/shrimpsizemoose/trekker/logger"

	"github.com/shrimpsizemoose/marksheet/internal/app"
	"github.com/shrimpsizemoose/marksheet/internal/models"
)

const (
	publicHelp = `Available commands:
/help - show this message`

	adminHelp = `Available commands:
/student <admission no> - show a mark sheet
/ranklist <class> - class rank list
/marks <admission no> <subject> ta <score> ce <score> - record marks
/classes - list classes
/addclass <name> - add a custom class
/recompute - re-evaluate every mark and re-rank all classes
/help - show this message

Examples:
/student 2024-017
/ranklist II BCom
/marks 2024-017 English ta 18 ce Absent`

	commandTimeout = 30 * time.Second
)

type commandHandler func(ctx context.Context, args string) (string, error)

func (b *Bot) routeAdminCommands(cmd string) (commandHandler, bool) {
	commands := map[string]commandHandler{
		"student":   b.handleStudent,
		"ranklist":  b.handleRanklist,
		"marks":     b.handleMarks,
		"classes":   b.handleClasses,
		"addclass":  b.handleAddClass,
		"recompute": b.handleRecompute,
	}
	handler, found := commands[cmd]
	return handler, found
}

func (b *Bot) handleMessage(msg *tgbotapi.Message) {
	if !msg.IsCommand() {
		b.sendHelp(msg.Chat.ID)
		return
	}

	cmd := msg.Command()
	isAdmin := msg.From != nil && b.admins[msg.From.ID]

	switch {
	case cmd == "start" || cmd == "help":
		text := publicHelp
		if isAdmin {
			text = adminHelp
		}
		b.sendMessage(msg.Chat.ID, text)
		return
	case !isAdmin:
		b.sendHelp(msg.Chat.ID)
		return
	}

	handler, ok := b.routeAdminCommands(cmd)
	if !ok {
		b.sendHelp(msg.Chat.ID)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	reply, err := handler(ctx, msg.CommandArguments())
	if err != nil {
		logger.Error.Printf("Command /%s error: %v", cmd, err)
		reply = fmt.Sprintf("Error: %v", err)
	}
	if err := b.sendMessage(msg.Chat.ID, reply); err != nil {
		logger.Error.Printf("Failed to send reply: %v", err)
	}
}

func (b *Bot) sendHelp(chatID int64) error {
	return b.sendMessage(chatID, "Send /help for the list of commands.")
}

func (b *Bot) handleStudent(ctx context.Context, args string) (string, error) {
	admissionNo := strings.TrimSpace(args)
	if admissionNo == "" {
		return "", fmt.Errorf("usage: /student <admission no>")
	}
	student, err := b.service.FindByAdmissionNo(ctx, admissionNo)
	if err != nil {
		return "", err
	}
	subjects, err := b.service.ListSubjects(ctx)
	if err != nil {
		return "", err
	}
	return formatStudent(*student, subjects), nil
}

func (b *Bot) handleRanklist(ctx context.Context, args string) (string, error) {
	class := strings.TrimSpace(args)
	if class == "" {
		return "", fmt.Errorf("usage: /ranklist <class>")
	}
	students, err := b.service.ClassRanklist(ctx, class)
	if err != nil {
		return "", err
	}
	return formatRanklist(class, students), nil
}

func (b *Bot) handleMarks(ctx context.Context, args string) (string, error) {
	cmd, err := parseMarksArgs(strings.Fields(args))
	if err != nil {
		return "", err
	}

	student, err := b.service.FindByAdmissionNo(ctx, cmd.admissionNo)
	if err != nil {
		return "", err
	}
	subjects, err := b.service.ListSubjects(ctx)
	if err != nil {
		return "", err
	}
	subject, ok := findSubject(subjects, cmd.subject)
	if !ok {
		return "", &models.NotFoundError{Kind: "subject", ID: cmd.subject}
	}

	updated, err := b.service.UpdateMarks(ctx, student.ID, subject.ID, cmd.update)
	if err != nil {
		return "", err
	}
	mark := updated.Marks[subject.ID]
	return fmt.Sprintf("✅ %s, %s: TA %s / CE %s = %s (%s)\nAverage %s, rank %d",
		updated.Name, subject.Name,
		orDash(mark.TA), orDash(mark.CE), num(mark.Total), mark.Status,
		num(updated.Average), updated.Rank,
	), nil
}

func (b *Bot) handleClasses(ctx context.Context, args string) (string, error) {
	return "Classes:\n" + strings.Join(b.service.ListClasses(), "\n"), nil
}

func (b *Bot) handleAddClass(ctx context.Context, args string) (string, error) {
	name := strings.TrimSpace(args)
	added, err := b.service.AddCustomClass(ctx, name)
	if err != nil {
		return "", err
	}
	if !added {
		return fmt.Sprintf("Class %s already exists", name), nil
	}
	return fmt.Sprintf("✅ Class %s added", name), nil
}

func (b *Bot) handleRecompute(ctx context.Context, args string) (string, error) {
	result, err := b.service.RecalculateAll(ctx)
	if err != nil {
		return "", err
	}
	text := fmt.Sprintf("✅ %d records updated, %d classes ranked", result.SuccessCount, len(result.ClassesRanked))
	if len(result.Errors) > 0 {
		text += fmt.Sprintf("\n⚠️ %d records failed", len(result.Errors))
	}
	if result.RankingError != "" {
		text += "\n⚠️ ranking: " + result.RankingError
	}
	return text, nil
}

type marksCommand struct {
	admissionNo string
	subject     string
	update      app.MarkUpdate
}

// parseMarksArgs reads "<admission no> <subject words...> ta <score> ce <score>".
// Either component may be left out.
func parseMarksArgs(args []string) (marksCommand, error) {
	usage := fmt.Errorf("usage: /marks <admission no> <subject> ta <score> ce <score>")
	if len(args) < 4 {
		return marksCommand{}, usage
	}

	cmd := marksCommand{admissionNo: args[0]}
	i := 1
	var subjectWords []string
	for ; i < len(args); i++ {
		key := strings.ToLower(args[i])
		if key == "ta" || key == "ce" {
			break
		}
		subjectWords = append(subjectWords, args[i])
	}
	cmd.subject = strings.Join(subjectWords, " ")
	if cmd.subject == "" || i == len(args) {
		return marksCommand{}, usage
	}

	for ; i < len(args); i += 2 {
		if i+1 >= len(args) {
			return marksCommand{}, fmt.Errorf("missing value for %s", args[i])
		}
		score, err := models.ParseScore(args[i+1])
		if err != nil {
			return marksCommand{}, err
		}
		switch strings.ToLower(args[i]) {
		case "ta":
			cmd.update.TA = &score
		case "ce":
			cmd.update.CE = &score
		default:
			return marksCommand{}, fmt.Errorf("unknown parameter: %s", args[i])
		}
	}
	return cmd, nil
}

func findSubject(subjects []models.SubjectConfig, query string) (models.SubjectConfig, bool) {
	for _, s := range subjects {
		if s.ID == query || strings.EqualFold(s.Name, query) {
			return s, true
		}
	}
	return models.SubjectConfig{}, false
}

func formatStudent(s models.StudentRecord, subjects []models.SubjectConfig) string {
	var msg strings.Builder
	msg.WriteString(fmt.Sprintf("📋 %s (%s), %s, %s semester\n\n", s.Name, s.AdmissionNo, s.ClassName, s.Semester))

	for _, subject := range subjects {
		mark, ok := s.Marks[subject.ID]
		if !ok {
			continue
		}
		msg.WriteString(fmt.Sprintf("%s: TA %s / CE %s = %s (%s)\n",
			subject.Name, orDash(mark.TA), orDash(mark.CE), num(mark.Total), mark.Status))
	}
	if len(s.Marks) == 0 {
		msg.WriteString("No marks yet\n")
	}

	rank := "-"
	if s.Rank > 0 {
		rank = fmt.Sprintf("%d", s.Rank)
	}
	msg.WriteString(fmt.Sprintf("\nTotal %s, average %s, rank %s, %s",
		num(s.GrandTotal), num(s.Average), rank, s.PerformanceLevel))
	return msg.String()
}

func formatRanklist(class string, students []models.StudentRecord) string {
	if len(students) == 0 {
		return fmt.Sprintf("No students in %s", class)
	}
	var msg strings.Builder
	msg.WriteString(fmt.Sprintf("🏆 %s\n\n", class))
	for _, s := range students {
		msg.WriteString(fmt.Sprintf("%d. %s (%s) %s, %s\n", s.Rank, s.Name, s.AdmissionNo, num(s.GrandTotal), s.PerformanceLevel))
	}
	return msg.String()
}

func orDash(s models.Score) string {
	if s.IsEmpty() {
		return "-"
	}
	return s.String()
}

func num(v float64) string {
	return models.Numeric(v).String()
}
