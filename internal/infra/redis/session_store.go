package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"quiz-session-service/internal/app"
	"quiz-session-service/internal/domain"
)

var _ app.SessionStore = (*SessionStore)(nil)

// SessionStore keeps sessions in Redis. Layout per session id:
//
//	quiz:session:{id}               JSON session document (metadata, questions, state)
//	quiz:session:{id}:participants  HASH participantID -> JSON participant document
//	quiz:session:{id}:users         HASH userID -> participantID
//	quiz:session:{id}:scores        HASH participantID -> score
//	quiz:session:{id}:answered      SET  participants that answered the current question
//	quiz:session:{id}:stats         HASH {participantID}:answers|correct|rt -> counters
//	quiz:session:{id}:answers       HASH {participantID}:{questionID} -> JSON answer
//	quiz:code:{code}                session id, only while the session is not COMPLETED
//	quiz:host:{hostID}              SET of hosted session ids
//
// Multi-key writes run as Lua scripts so each one is atomic.
type SessionStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewSessionStore(client *redis.Client, ttl time.Duration) *SessionStore {
	return &SessionStore{client: client, ttl: ttl}
}

var saveStateScript = redis.NewScript(`
redis.call('SET', KEYS[1], ARGV[1])
if ARGV[2] == '1' then
	redis.call('DEL', KEYS[2])
end
if ARGV[3] == '1' and redis.call('GET', KEYS[3]) == ARGV[4] then
	redis.call('DEL', KEYS[3])
end
return 1
`)

var addParticipantScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[4]) == 0 then
	return false
end
local existing = redis.call('HGET', KEYS[1], ARGV[1])
if existing then
	return existing
end
redis.call('HSET', KEYS[1], ARGV[1], ARGV[2])
redis.call('HSET', KEYS[2], ARGV[2], ARGV[3])
redis.call('HSET', KEYS[3], ARGV[2], 0)
return ARGV[2]
`)

// touchScript refreshes every key of a session. The last key is the access
// code, refreshed only while it still resolves to this session.
var touchScript = redis.NewScript(`
for i = 1, #KEYS - 1 do
	redis.call('PEXPIRE', KEYS[i], ARGV[1])
end
if redis.call('GET', KEYS[#KEYS]) == ARGV[2] then
	redis.call('PEXPIRE', KEYS[#KEYS], ARGV[1])
end
return 1
`)

var releaseCodeScript = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
	return redis.call('DEL', KEYS[1])
end
return 0
`)

// recordAnswerScript returns the new score, -1 for a duplicate, -2 for an unknown participant.
var recordAnswerScript = redis.NewScript(`
if redis.call('HEXISTS', KEYS[5], ARGV[3]) == 0 then
	return -2
end
if redis.call('HSETNX', KEYS[1], ARGV[1], ARGV[2]) == 0 then
	return -1
end
local score = redis.call('HINCRBY', KEYS[2], ARGV[3], ARGV[4])
redis.call('SADD', KEYS[3], ARGV[3])
redis.call('HINCRBY', KEYS[4], ARGV[3] .. ':answers', 1)
if ARGV[5] == '1' then
	redis.call('HINCRBY', KEYS[4], ARGV[3] .. ':correct', 1)
end
redis.call('HINCRBY', KEYS[4], ARGV[3] .. ':rt', ARGV[6])
return score
`)

type sessionDoc struct {
	ID                   string            `json:"id"`
	AccessCode           string            `json:"accessCode"`
	QuizID               string            `json:"quizId"`
	QuizTitle            string            `json:"quizTitle"`
	HostID               string            `json:"hostId"`
	Questions            []domain.Question `json:"questions"`
	CreatedAt            time.Time         `json:"createdAt"`
	Status               domain.Status     `json:"status"`
	CurrentQuestionIndex int               `json:"currentQuestionIndex"`
	StartedAt            *time.Time        `json:"startedAt,omitempty"`
	EndedAt              *time.Time        `json:"endedAt,omitempty"`
}

type participantDoc struct {
	ID          string    `json:"id"`
	SessionID   string    `json:"sessionId"`
	UserID      string    `json:"userId"`
	DisplayName string    `json:"displayName"`
	JoinedAt    time.Time `json:"joinedAt"`
}

type answerDoc struct {
	ID            string               `json:"id"`
	SessionID     string               `json:"sessionId"`
	ParticipantID string               `json:"participantId"`
	QuestionID    string               `json:"questionId"`
	Content       domain.AnswerContent `json:"content"`
	IsCorrect     bool                 `json:"isCorrect"`
	Points        int                  `json:"points"`
	ResponseTime  int64                `json:"responseTime"`
	AnsweredAt    time.Time            `json:"answeredAt"`
}

func (s *SessionStore) CreateSession(ctx context.Context, session domain.Session) error {
	data, err := json.Marshal(toSessionDoc(session))
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}
	ok, err := s.client.SetNX(ctx, codeKey(session.AccessCode), session.ID, s.ttl).Result()
	if err != nil {
		return fmt.Errorf("reserve access code: %w", err)
	}
	if !ok {
		return domain.ErrAccessCodeTaken
	}
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, sessionKey(session.ID), data, s.ttl)
		pipe.SAdd(ctx, hostKey(session.HostID), session.ID)
		if s.ttl > 0 {
			pipe.Expire(ctx, hostKey(session.HostID), s.ttl)
		}
		return nil
	})
	if err != nil {
		cleanup := context.WithoutCancel(ctx)
		_ = s.client.Del(cleanup, sessionKey(session.ID)).Err()
		_ = releaseCodeScript.Run(cleanup, s.client, []string{codeKey(session.AccessCode)}, session.ID).Err()
		return fmt.Errorf("store session: %w", err)
	}
	return nil
}

func (s *SessionStore) GetSession(ctx context.Context, sessionID string) (domain.Session, error) {
	raw, err := s.client.Get(ctx, sessionKey(sessionID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.Session{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Session{}, fmt.Errorf("get session: %w", err)
	}
	return decodeSession(raw)
}

func (s *SessionStore) FindByAccessCode(ctx context.Context, code string) (domain.Session, error) {
	id, err := s.client.Get(ctx, codeKey(code)).Result()
	if errors.Is(err, redis.Nil) {
		return domain.Session{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Session{}, fmt.Errorf("resolve access code: %w", err)
	}
	session, err := s.GetSession(ctx, id)
	if err != nil {
		return domain.Session{}, err
	}
	if session.Status() == domain.StatusCompleted {
		return domain.Session{}, domain.ErrNotFound
	}
	return session, nil
}

func (s *SessionStore) ListHostedSessions(ctx context.Context, hostID string) ([]domain.Session, error) {
	ids, err := s.client.SMembers(ctx, hostKey(hostID)).Result()
	if err != nil {
		return nil, fmt.Errorf("list hosted sessions: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}
	cmds := make([]*redis.StringCmd, len(ids))
	_, err = s.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, id := range ids {
			cmds[i] = pipe.Get(ctx, sessionKey(id))
		}
		return nil
	})
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("load hosted sessions: %w", err)
	}
	out := make([]domain.Session, 0, len(ids))
	for _, cmd := range cmds {
		raw, err := cmd.Bytes()
		if err != nil {
			continue // expired
		}
		session, err := decodeSession(raw)
		if err != nil {
			return nil, err
		}
		out = append(out, session)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *SessionStore) SaveState(ctx context.Context, session domain.Session, resetAnswered bool) error {
	data, err := json.Marshal(toSessionDoc(session))
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}
	keys := []string{sessionKey(session.ID), answeredKey(session.ID), codeKey(session.AccessCode)}
	completed := session.Status() == domain.StatusCompleted
	if err := saveStateScript.Run(ctx, s.client, keys, data, flag(resetAnswered), flag(completed), session.ID).Err(); err != nil {
		return fmt.Errorf("save state: %w", err)
	}
	s.touch(ctx, session.ID, session.AccessCode)
	return nil
}

func (s *SessionStore) AddParticipant(ctx context.Context, p domain.Participant) (domain.Participant, bool, error) {
	data, err := json.Marshal(participantDoc{
		ID:          p.ID,
		SessionID:   p.SessionID,
		UserID:      p.UserID,
		DisplayName: p.DisplayName,
		JoinedAt:    p.JoinedAt,
	})
	if err != nil {
		return domain.Participant{}, false, fmt.Errorf("marshal participant: %w", err)
	}
	keys := []string{usersKey(p.SessionID), participantsKey(p.SessionID), scoresKey(p.SessionID), sessionKey(p.SessionID)}
	id, err := addParticipantScript.Run(ctx, s.client, keys, p.UserID, p.ID, data).Text()
	if errors.Is(err, redis.Nil) {
		return domain.Participant{}, false, domain.ErrNotFound
	}
	if err != nil {
		return domain.Participant{}, false, fmt.Errorf("add participant: %w", err)
	}
	s.touch(ctx, p.SessionID, "")
	stored, err := s.GetParticipant(ctx, p.SessionID, id)
	if err != nil {
		return domain.Participant{}, false, err
	}
	return stored, id == p.ID, nil
}

func (s *SessionStore) GetParticipant(ctx context.Context, sessionID, participantID string) (domain.Participant, error) {
	var (
		docCmd      *redis.StringCmd
		scoreCmd    *redis.StringCmd
		answeredCmd *redis.BoolCmd
		statsCmd    *redis.SliceCmd
	)
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		docCmd = pipe.HGet(ctx, participantsKey(sessionID), participantID)
		scoreCmd = pipe.HGet(ctx, scoresKey(sessionID), participantID)
		answeredCmd = pipe.SIsMember(ctx, answeredKey(sessionID), participantID)
		statsCmd = pipe.HMGet(ctx, statsKey(sessionID), participantID+":answers", participantID+":correct", participantID+":rt")
		return nil
	})
	if err != nil && !errors.Is(err, redis.Nil) {
		return domain.Participant{}, fmt.Errorf("get participant: %w", err)
	}
	raw, err := docCmd.Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.Participant{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Participant{}, fmt.Errorf("get participant: %w", err)
	}
	var doc participantDoc
	if err := json.Unmarshal(raw, &doc); err != nil {
		return domain.Participant{}, fmt.Errorf("unmarshal participant: %w", err)
	}
	p := fromParticipantDoc(doc)
	p.Score, _ = strconv.Atoi(scoreCmd.Val())
	p.HasAnsweredCurrent = answeredCmd.Val()
	stats := statsCmd.Val()
	p.AnswerCount = int(toInt64(stats[0]))
	p.CorrectCount = int(toInt64(stats[1]))
	p.TotalResponseTime = toInt64(stats[2])
	return p, nil
}

func (s *SessionStore) Snapshot(ctx context.Context, sessionID string) (domain.Session, []domain.Participant, error) {
	var (
		sessionCmd      *redis.StringCmd
		participantsCmd *redis.MapStringStringCmd
		scoresCmd       *redis.MapStringStringCmd
		answeredCmd     *redis.StringSliceCmd
		statsCmd        *redis.MapStringStringCmd
	)
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		sessionCmd = pipe.Get(ctx, sessionKey(sessionID))
		participantsCmd = pipe.HGetAll(ctx, participantsKey(sessionID))
		scoresCmd = pipe.HGetAll(ctx, scoresKey(sessionID))
		answeredCmd = pipe.SMembers(ctx, answeredKey(sessionID))
		statsCmd = pipe.HGetAll(ctx, statsKey(sessionID))
		return nil
	})
	if err != nil && !errors.Is(err, redis.Nil) {
		return domain.Session{}, nil, fmt.Errorf("snapshot: %w", err)
	}
	raw, err := sessionCmd.Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.Session{}, nil, domain.ErrNotFound
	}
	if err != nil {
		return domain.Session{}, nil, fmt.Errorf("snapshot: %w", err)
	}
	session, err := decodeSession(raw)
	if err != nil {
		return domain.Session{}, nil, err
	}

	answered := make(map[string]bool)
	for _, id := range answeredCmd.Val() {
		answered[id] = true
	}
	scores := scoresCmd.Val()
	stats := statsCmd.Val()
	participants := make([]domain.Participant, 0, len(participantsCmd.Val()))
	for id, rawDoc := range participantsCmd.Val() {
		var doc participantDoc
		if err := json.Unmarshal([]byte(rawDoc), &doc); err != nil {
			return domain.Session{}, nil, fmt.Errorf("unmarshal participant %s: %w", id, err)
		}
		p := fromParticipantDoc(doc)
		p.Score, _ = strconv.Atoi(scores[id])
		p.HasAnsweredCurrent = answered[id]
		p.AnswerCount, _ = strconv.Atoi(stats[id+":answers"])
		p.CorrectCount, _ = strconv.Atoi(stats[id+":correct"])
		p.TotalResponseTime, _ = strconv.ParseInt(stats[id+":rt"], 10, 64)
		participants = append(participants, p)
	}
	return session, participants, nil
}

func (s *SessionStore) RecordAnswer(ctx context.Context, answer domain.Answer) (domain.Participant, error) {
	data, err := json.Marshal(answerDoc(answer))
	if err != nil {
		return domain.Participant{}, fmt.Errorf("marshal answer: %w", err)
	}
	keys := []string{
		answersKey(answer.SessionID),
		scoresKey(answer.SessionID),
		answeredKey(answer.SessionID),
		statsKey(answer.SessionID),
		participantsKey(answer.SessionID),
	}
	res, err := recordAnswerScript.Run(ctx, s.client, keys,
		answerField(answer.ParticipantID, answer.QuestionID), data, answer.ParticipantID,
		answer.Points, flag(answer.IsCorrect), answer.ResponseTime).Int64()
	if err != nil {
		return domain.Participant{}, fmt.Errorf("record answer: %w", err)
	}
	switch res {
	case -1:
		return domain.Participant{}, domain.ErrDuplicateAnswer
	case -2:
		return domain.Participant{}, domain.ErrNotFound
	}
	s.touch(ctx, answer.SessionID, "")
	return s.GetParticipant(ctx, answer.SessionID, answer.ParticipantID)
}

func (s *SessionStore) GetAnswer(ctx context.Context, sessionID, participantID, questionID string) (domain.Answer, error) {
	raw, err := s.client.HGet(ctx, answersKey(sessionID), answerField(participantID, questionID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.Answer{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Answer{}, fmt.Errorf("get answer: %w", err)
	}
	var doc answerDoc
	if err := json.Unmarshal(raw, &doc); err != nil {
		return domain.Answer{}, fmt.Errorf("unmarshal answer: %w", err)
	}
	return domain.Answer(doc), nil
}

// touch refreshes the TTL of every key of a session, including its access
// code while the code is still held (best effort). An empty code is resolved
// from the session document.
func (s *SessionStore) touch(ctx context.Context, sessionID, code string) {
	if s.ttl <= 0 {
		return
	}
	if code == "" {
		session, err := s.GetSession(ctx, sessionID)
		if err != nil {
			return
		}
		code = session.AccessCode
	}
	keys := []string{
		sessionKey(sessionID), participantsKey(sessionID), usersKey(sessionID), scoresKey(sessionID),
		answeredKey(sessionID), statsKey(sessionID), answersKey(sessionID), codeKey(code),
	}
	_ = touchScript.Run(ctx, s.client, keys, s.ttl.Milliseconds(), sessionID).Err()
}

func toSessionDoc(session domain.Session) sessionDoc {
	rec := domain.RecordOf(session.State)
	return sessionDoc{
		ID:                   session.ID,
		AccessCode:           session.AccessCode,
		QuizID:               session.QuizID,
		QuizTitle:            session.QuizTitle,
		HostID:               session.HostID,
		Questions:            session.Questions,
		CreatedAt:            session.CreatedAt,
		Status:               rec.Status,
		CurrentQuestionIndex: rec.CurrentQuestionIndex,
		StartedAt:            rec.StartedAt,
		EndedAt:              rec.EndedAt,
	}
}

func decodeSession(raw []byte) (domain.Session, error) {
	var doc sessionDoc
	if err := json.Unmarshal(raw, &doc); err != nil {
		return domain.Session{}, fmt.Errorf("unmarshal session: %w", err)
	}
	state, err := domain.StateRecord{
		Status:               doc.Status,
		CurrentQuestionIndex: doc.CurrentQuestionIndex,
		StartedAt:            doc.StartedAt,
		EndedAt:              doc.EndedAt,
	}.State()
	if err != nil {
		return domain.Session{}, err
	}
	return domain.Session{
		ID:         doc.ID,
		AccessCode: doc.AccessCode,
		QuizID:     doc.QuizID,
		QuizTitle:  doc.QuizTitle,
		HostID:     doc.HostID,
		Questions:  doc.Questions,
		CreatedAt:  doc.CreatedAt,
		State:      state,
	}, nil
}

func fromParticipantDoc(doc participantDoc) domain.Participant {
	return domain.Participant{
		ID:          doc.ID,
		SessionID:   doc.SessionID,
		UserID:      doc.UserID,
		DisplayName: doc.DisplayName,
		JoinedAt:    doc.JoinedAt,
	}
}

func toInt64(v interface{}) int64 {
	s, ok := v.(string)
	if !ok {
		return 0
	}
	n, _ := strconv.ParseInt(s, 10, 64)
	return n
}

func flag(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

func sessionKey(id string) string      { return "quiz:session:" + id }
func participantsKey(id string) string { return sessionKey(id) + ":participants" }
func usersKey(id string) string        { return sessionKey(id) + ":users" }
func scoresKey(id string) string       { return sessionKey(id) + ":scores" }
func answeredKey(id string) string     { return sessionKey(id) + ":answered" }
func statsKey(id string) string        { return sessionKey(id) + ":stats" }
func answersKey(id string) string      { return sessionKey(id) + ":answers" }
func codeKey(code string) string       { return "quiz:code:" + code }
func hostKey(hostID string) string     { return "quiz:host:" + hostID }

func answerField(participantID, questionID string) string {
	return participantID + ":" + questionID
}
