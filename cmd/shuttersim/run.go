package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cenkalti/backoff"
	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/jkaflik/shuttersim/internal/accessory"
	"github.com/jkaflik/shuttersim/internal/httpapi"
	"github.com/jkaflik/shuttersim/internal/mqtt"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func runService(cmd *cobra.Command, args []string) error {
	reg, err := registryFromConfig(Cfg.Shutters)
	if err != nil {
		return err
	}
	if len(reg.All()) == 0 {
		logrus.Warn("no shutters configured")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if Cfg.HTTP.Enabled {
		srv := &http.Server{Addr: Cfg.HTTP.Addr, Handler: httpapi.NewRouter(reg)}
		go func() {
			logrus.Infof("HTTP listening on %s", Cfg.HTTP.Addr)
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logrus.Errorf("HTTP server failed: %s", err)
				cancel()
			}
		}()
		defer func() {
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), time.Second)
			defer shutdownCancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				logrus.Errorf("HTTP shutdown failed: %s", err)
			}
		}()
	}

	if Cfg.MQTT.Enabled {
		m, err := connectMQTT(ctx, reg)
		if err != nil {
			return err
		}
		defer func() {
			if token := m.Publish(mqtt.AvailabilityTopic, 0, true, mqtt.PayloadOffline); token.Wait() && token.Error() != nil {
				logrus.Errorf("MQTT availability publish failed: %s", token.Error())
			}
			m.Disconnect(250)
			logrus.Info("MQTT broker disconnected")
		}()
	}

	<-ctx.Done()
	logrus.Info("shutting down")

	return nil
}

func connectMQTT(ctx context.Context, reg *accessory.Registry) (paho.Client, error) {
	opts := pahoOptsFromConfig(Cfg.MQTT)

	var bridges []*mqtt.Bridge
	opts.OnConnect = func(m paho.Client) {
		logrus.Info("MQTT broker connected")
		announce(ctx, m, bridges)
	}
	opts.OnConnectionLost = func(_ paho.Client, err error) {
		logrus.Errorf("MQTT broker connection lost: %s", err.Error())
	}

	m := paho.NewClient(opts)
	bridges = bridgesFromConfig(m, reg)

	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = Cfg.MQTT.ConnectRetry
	err := backoff.RetryNotify(func() error {
		token := m.Connect()
		token.Wait()
		return token.Error()
	}, backoff.WithContext(b, ctx), func(err error, next time.Duration) {
		logrus.Warnf("MQTT broker %s connect failed, retry in %s: %s", Cfg.MQTT.Broker, next, err)
	})
	if err != nil {
		return nil, errors.Wrapf(err, "MQTT broker %s connect", Cfg.MQTT.Broker)
	}

	return m, nil
}

// announce runs on every (re)connect, the broker may have lost retained
// messages and subscriptions.
func announce(ctx context.Context, m paho.Client, bridges []*mqtt.Bridge) {
	if token := m.Publish(mqtt.AvailabilityTopic, 0, true, mqtt.PayloadOnline); token.Wait() && token.Error() != nil {
		logrus.Errorf("MQTT availability publish failed: %s", token.Error())
	}

	for _, bridge := range bridges {
		if Cfg.HASS.Enabled {
			entity := mqtt.NewHACoverFromMQTTBridge(bridge)
			if err := mqtt.PublishHAAutoDiscovery(m, Cfg.HASS.TopicPrefix, entity); err != nil {
				logrus.Error(err)
			}
		}

		if metadata := metadataFromConfig(Cfg.Shutters, bridge.Name()); metadata != nil {
			if err := bridge.SetMetadata(metadata); err != nil {
				logrus.Error(err)
			}
		}

		if err := bridge.PublishState(); err != nil {
			logrus.Error(err)
		}

		if err := bridge.Subscribe(ctx); err != nil {
			logrus.Error(err)
		}
	}
}
