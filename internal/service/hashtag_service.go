package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/qs3c/hashtag_server/internal/model"
	"github.com/qs3c/hashtag_server/internal/model/dto"
)

const defaultHashtagCount = 10

// HashtagService 生成话题标签：检查额度、调用生成器、记录用量
type HashtagService struct {
	auth      *AuthService
	generator Generator
	log       *zap.Logger
}

func NewHashtagService(auth *AuthService, generator Generator, log *zap.Logger) *HashtagService {
	if log == nil {
		log = zap.NewNop()
	}
	return &HashtagService{auth: auth, generator: generator, log: log}
}

// Generate user 为 nil 时是匿名调用，不计量
func (s *HashtagService) Generate(ctx context.Context, user *model.User, req *dto.GenerateRequest) (*dto.GenerateResponse, error) {
	count := req.Count
	if count <= 0 {
		count = defaultHashtagCount
	}

	if user != nil {
		// 额度检查和自增之间的竞争最多让一次生成越过上限
		if _, err := s.auth.CheckUsage(ctx, user); err != nil {
			return nil, err
		}
	}

	tags, err := s.generator.Generate(ctx, req.Text, count)
	if err != nil {
		return nil, fmt.Errorf("generate hashtags: %w", err)
	}

	resp := &dto.GenerateResponse{Hashtags: tags}
	if user == nil {
		return resp, nil
	}

	if err := s.auth.TrackHashtagGeneration(ctx, user.ID, len(tags)); err != nil {
		// 已经生成的结果照常返回
		s.log.Error("usage not recorded", zap.Int64("user_id", user.ID), zap.Error(err))
		return resp, nil
	}

	usage, err := s.auth.GetUserUsage(ctx, user.ID)
	if err == nil {
		resp.Usage = usage
	}
	return resp, nil
}
