package broker

import (
	"crypto/sha256"
	"crypto/sha512"

	"github.com/IBM/sarama"
	"github.com/xdg-go/scram"
)

var (
	sha256Generator scram.HashGeneratorFcn = sha256.New
	sha512Generator scram.HashGeneratorFcn = sha512.New
)

// scramClient 基于 xdg-go/scram 实现 sarama.SCRAMClient.
type scramClient struct {
	*scram.Client
	*scram.ClientConversation
	scram.HashGeneratorFcn
}

func newSCRAMClientGenerator(fcn scram.HashGeneratorFcn) func() sarama.SCRAMClient {
	return func() sarama.SCRAMClient {
		return &scramClient{HashGeneratorFcn: fcn}
	}
}

// Begin 开始一次 SCRAM 会话.
func (x *scramClient) Begin(userName, password, authzID string) (err error) {
	x.Client, err = x.HashGeneratorFcn.NewClient(userName, password, authzID)
	if err != nil {
		return err
	}
	x.ClientConversation = x.Client.NewConversation()
	return nil
}

// Step 处理服务端挑战.
func (x *scramClient) Step(challenge string) (string, error) {
	return x.ClientConversation.Step(challenge)
}

// Done 会话是否完成.
func (x *scramClient) Done() bool {
	return x.ClientConversation.Done()
}
