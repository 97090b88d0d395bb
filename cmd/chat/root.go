package chat

import (
	"github.com/ValentinKolb/dCP/cmd/util"
	"github.com/ValentinKolb/dCP/lib/chat"
	"github.com/ValentinKolb/dCP/rpc/client"
	"github.com/ValentinKolb/dCP/rpc/common"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	chatClient *client.Client[chat.Command, chat.Result]

	// ChatCommands represents the chat client command group
	ChatCommands = &cobra.Command{
		Use:                "chat",
		Short:              "Talk to a dCP chat server",
		PersistentPreRunE:  setupChatClient,
		PersistentPostRunE: closeChatClient,
	}
)

func init() {
	// Add common client flags to the chat command
	util.SetupClientFlags(ChatCommands)

	ChatCommands.PersistentFlags().String("nick", "", util.WrapString("Nickname to register after connecting (empty = server default)"))
	ChatCommands.PersistentFlags().String("log-level", "warn", util.WrapString("LogLevel is the level at which logs will be output (debug, info, warn, error)"))

	// Add subcommands
	ChatCommands.AddCommand(sendCmd)
	ChatCommands.AddCommand(listenCmd)
	ChatCommands.AddCommand(benchCmd)
}

// setupChatClient connects the chat client
func setupChatClient(cmd *cobra.Command, _ []string) error {
	// Bind command flags to viper
	if err := util.BindCommandFlags(cmd); err != nil {
		return err
	}

	if err := common.InitLoggers(viper.GetString("log-level")); err != nil {
		return err
	}

	connector, err := util.GetClientConnector()
	if err != nil {
		return err
	}

	chatClient = client.New[chat.Command, chat.Result](connector, *util.GetClientConfig())
	if err := chatClient.Connect(); err != nil {
		return err
	}

	if nick := viper.GetString("nick"); nick != "" {
		if _, err := call(chat.CmdNick, []string{nick}); err != nil {
			return err
		}
	}
	return nil
}

func closeChatClient(_ *cobra.Command, _ []string) error {
	if chatClient == nil {
		return nil
	}
	return chatClient.Close()
}
